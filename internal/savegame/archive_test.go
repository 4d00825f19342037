package savegame_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tbtr/internal/blob"
	"tbtr/internal/infra/persistence/memory"
	"tbtr/internal/infra/persistence/sqlite"
	"tbtr/internal/savegame"
	"tbtr/pkg/domain"
)

func seed(t *testing.T, store domain.PersistentStore, engine domain.EngineID, group domain.GroupID) domain.TemplateID {
	t.Helper()
	var head domain.TemplateUnit
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		head, err = tx.CreateUnit(domain.TemplateUnit{EngineType: engine, Subtype: domain.SubtypeEngine | domain.SubtypeFront, Owner: 1})
		if err != nil {
			return err
		}
		if err := tx.PutChain(domain.Chain{Head: head.ID, Tail: head.ID, Owner: 1}); err != nil {
			return err
		}
		_, err = tx.PutGroup(domain.GroupTemplate{GroupID: group, Owner: 1, TemplateID: head.ID, KeepRemainders: true})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return head.ID
}

func countUnits(t *testing.T, store domain.PersistentStore) int {
	t.Helper()
	var n int
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		n = len(v.ListUnits())
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return n
}

type sequence struct {
	at time.Time
	n  int
}

func (s *sequence) now() time.Time {
	s.at = s.at.Add(time.Minute)
	return s.at
}

func (s *sequence) id() uuid.UUID {
	s.n++
	return uuid.MustParse("00000000-0000-4000-8000-00000000000" + string(rune('0'+s.n)))
}

func TestSaveAndLoadNewest(t *testing.T) {
	ctx := context.Background()
	seq := &sequence{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	archive := savegame.New(blob.NewMemory(), savegame.WithClock(seq.now), savegame.WithIDGenerator(seq.id))

	store := memory.NewStore(nil)
	first := seed(t, store, 1, 5)
	info, err := archive.Save(ctx, store, "coal-line")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.Key != "saves/coal-line/00000000-0000-4000-8000-000000000001.json" || info.ContentType != "application/json" {
		t.Fatalf("unexpected save info %+v", info)
	}

	second := seed(t, store, 2, 6)
	if _, err := archive.Save(ctx, store, "coal-line"); err != nil {
		t.Fatalf("second save: %v", err)
	}
	saves, err := archive.List(ctx, "coal-line")
	if err != nil || len(saves) != 2 {
		t.Fatalf("expected two saves, got %d (%v)", len(saves), err)
	}

	restored := memory.NewStore(nil)
	doc, err := archive.Load(ctx, restored, "coal-line")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Name != "coal-line" || !doc.SavedAt.Equal(time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC)) {
		t.Fatalf("expected the newest save, got %+v", doc)
	}
	if countUnits(t, restored) != 2 {
		t.Fatalf("expected both templates restored")
	}
	if err := restored.View(ctx, func(v domain.TransactionView) error {
		for _, group := range []struct {
			id   domain.GroupID
			head domain.TemplateID
		}{{5, first}, {6, second}} {
			g, ok := v.FindGroup(group.id)
			if !ok || g.TemplateID != group.head || !g.KeepRemainders {
				t.Fatalf("group %d not restored: %+v", group.id, g)
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	// New units must not reuse restored ids.
	if next := seed(t, restored, 1, 7); next <= second {
		t.Fatalf("expected fresh id after %d, got %d", second, next)
	}
}

func TestLoadPersistsDurableStore(t *testing.T) {
	ctx := context.Background()
	archive := savegame.New(blob.NewMemory())
	src := memory.NewStore(nil)
	seed(t, src, 1, 5)
	if _, err := archive.Save(ctx, src, "durable"); err != nil {
		t.Fatalf("save: %v", err)
	}

	path := filepath.Join(t.TempDir(), "state.db")
	db, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := archive.Load(ctx, db, "durable"); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = db.Close()

	reopened, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if countUnits(t, reopened) != 1 {
		t.Fatalf("expected loaded save to be persisted")
	}
}

func TestArchiveErrors(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	archive := savegame.New(store)
	state := memory.NewStore(nil)

	if _, err := archive.Load(ctx, state, "empty"); !errors.Is(err, savegame.ErrNoSave) {
		t.Fatalf("expected ErrNoSave, got %v", err)
	}
	for _, name := range []string{"", "../up", "a/b", ".hidden"} {
		if _, err := archive.Save(ctx, state, name); err == nil {
			t.Fatalf("expected name %q to be rejected", name)
		}
	}

	if _, err := store.Put(ctx, "saves/broken/x.json", strings.NewReader("{"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := archive.Load(ctx, state, "broken"); err == nil || !strings.Contains(err.Error(), "decode save") {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := store.Put(ctx, "saves/future/x.json", strings.NewReader(`{"version":99}`), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := archive.Load(ctx, state, "future"); err == nil || !strings.Contains(err.Error(), "format version") {
		t.Fatalf("expected version error, got %v", err)
	}
	if _, err := archive.Read(ctx, "saves/none/x.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
