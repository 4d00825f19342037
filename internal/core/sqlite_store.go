package core

import (
	"tbtr/internal/infra/persistence/memory"
	"tbtr/internal/infra/persistence/sqlite"
)

// SQLiteStore is the file-backed template store.
type SQLiteStore = sqlite.Store

// NewSQLiteStore constructs a SQLite-backed template store using the provided file
// path (empty selects sqlite.DefaultPath) and rules engine.
func NewSQLiteStore(path string, engine *RulesEngine, opts ...memory.Option) (*SQLiteStore, error) {
	return sqlite.NewStore(path, engine, opts...)
}
