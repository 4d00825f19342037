// Package sqlite provides a file-backed template store that snapshots the
// in-memory state into a single SQLite table after every committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tbtr/internal/infra/persistence/memory"
	"tbtr/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "tbtr.db"

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine, opts...), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var (
		snapshot memory.Snapshot
		seen     int
	)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return err
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if seen == 0 {
		return nil
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction applies the provided function within a transaction, then snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
