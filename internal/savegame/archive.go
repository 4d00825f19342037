// Package savegame archives the persisted template state in a blob store. Each save
// is an immutable JSON document keyed saves/<name>/<uuid>.json; loading a name picks
// its newest document.
package savegame

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"tbtr/internal/blob"
	"tbtr/internal/infra/persistence/memory"
	"tbtr/pkg/domain"
)

// FormatVersion is written into every save and checked on load.
const FormatVersion = 1

const (
	keyPrefix   = "saves/"
	contentType = "application/json"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ErrNoSave is returned by Load when a name has no save yet.
var ErrNoSave = errors.New("no save found")

// State is a persistent store whose whole state can be exported and replaced.
// memory.Store and the durable stores embedding it satisfy it.
type State interface {
	domain.PersistentStore
	ExportState() memory.Snapshot
	ImportState(memory.Snapshot)
}

// Document is the JSON layout of one save.
type Document struct {
	Version int             `json:"version"`
	Name    string          `json:"name"`
	SavedAt time.Time       `json:"saved_at"`
	State   memory.Snapshot `json:"state"`
}

// Archive writes and reads saves.
type Archive struct {
	store blob.Store
	now   func() time.Time
	newID func() uuid.UUID
}

// Option configures an Archive.
type Option func(*Archive)

// WithClock overrides the save timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator overrides the generator of save ids.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(a *Archive) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// New returns an Archive on store.
func New(store blob.Store, opts ...Option) *Archive {
	a := &Archive{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Save writes the current state of src as a new save of name.
func (a *Archive) Save(ctx context.Context, src State, name string) (blob.Info, error) {
	if err := checkName(name); err != nil {
		return blob.Info{}, err
	}
	doc := Document{Version: FormatVersion, Name: name, SavedAt: a.now(), State: src.ExportState()}
	payload, err := json.Marshal(doc)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode save %s: %w", name, err)
	}
	key := keyPrefix + name + "/" + a.newID().String() + ".json"
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"name": name, "saved-at": doc.SavedAt.Format(time.RFC3339Nano)},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("write save %s: %w", name, err)
	}
	return info, nil
}

// List returns the saves of name, oldest first.
func (a *Archive) List(ctx context.Context, name string) ([]blob.Info, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	infos, err := a.store.List(ctx, keyPrefix+name+"/")
	if err != nil {
		return nil, fmt.Errorf("list saves %s: %w", name, err)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].LastModified.Equal(infos[j].LastModified) {
			return infos[i].LastModified.Before(infos[j].LastModified)
		}
		return infos[i].Key < infos[j].Key
	})
	return infos, nil
}

// Load replaces the state of dst with the newest save of name. Durable stores are
// flushed through an empty transaction so the loaded state survives a restart.
// Callers must reset their session caches afterwards.
func (a *Archive) Load(ctx context.Context, dst State, name string) (Document, error) {
	infos, err := a.List(ctx, name)
	if err != nil {
		return Document{}, err
	}
	if len(infos) == 0 {
		return Document{}, fmt.Errorf("%s: %w", name, ErrNoSave)
	}
	doc, err := a.Read(ctx, infos[len(infos)-1].Key)
	if err != nil {
		return Document{}, err
	}
	dst.ImportState(doc.State)
	if _, err := dst.RunInTransaction(ctx, func(domain.Transaction) error { return nil }); err != nil {
		return Document{}, fmt.Errorf("persist loaded save %s: %w", name, err)
	}
	return doc, nil
}

// Read decodes the save stored at key.
func (a *Archive) Read(ctx context.Context, key string) (Document, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("read save %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return Document{}, fmt.Errorf("read save %s: %w", key, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode save %s: %w", key, err)
	}
	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("save %s has format version %d, want %d", key, doc.Version, FormatVersion)
	}
	return doc, nil
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid save name %q", name)
	}
	return nil
}
