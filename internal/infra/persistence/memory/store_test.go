package memory_test

import (
	"context"
	"errors"
	"testing"

	"tbtr/internal/infra/persistence/memory"
	"tbtr/pkg/domain"
)

func TestMemoryStoreUnitLifecycle(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	var head, tail domain.TemplateUnit
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		head, err = tx.CreateUnit(domain.TemplateUnit{EngineType: 1})
		if err != nil {
			return err
		}
		tail, err = tx.CreateUnit(domain.TemplateUnit{EngineType: 2, Prev: head.ID})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateUnit(head.ID, func(u *domain.TemplateUnit) error {
			u.Next = tail.ID
			return nil
		}); err != nil {
			return err
		}
		return tx.PutChain(domain.Chain{Head: head.ID, Tail: tail.ID})
	}); err != nil {
		t.Fatalf("create chain: %v", err)
	}
	if head.ID == domain.InvalidTemplate || tail.ID == head.ID {
		t.Fatalf("unexpected ids head=%d tail=%d", head.ID, tail.ID)
	}

	if err := store.View(ctx, func(view domain.TransactionView) error {
		chain, ok := view.FindChain(head.ID)
		if !ok || chain.Tail != tail.ID {
			t.Fatalf("expected chain %d->%d, got %+v", head.ID, tail.ID, chain)
		}
		u, ok := view.FindUnit(head.ID)
		if !ok || u.Next != tail.ID {
			t.Fatalf("expected head to link to tail, got %+v", u)
		}
		if len(view.ListUnits()) != 2 || len(view.ListChains()) != 1 {
			t.Fatalf("unexpected listing sizes")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteUnit(tail.ID); err != nil {
			return err
		}
		if err := tx.DeleteUnit(head.ID); err != nil {
			return err
		}
		return tx.DeleteChain(head.ID)
	}); err != nil {
		t.Fatalf("delete chain: %v", err)
	}
	snap := store.ExportState()
	if len(snap.Units) != 0 || len(snap.Chains) != 0 {
		t.Fatalf("expected empty store, got %+v", snap)
	}
	if snap.NextID <= tail.ID {
		t.Fatalf("ids must not be reused: next=%d", snap.NextID)
	}
}

func TestMemoryStoreRollsBackFailedTransaction(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateUnit(domain.TemplateUnit{EngineType: 3}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.ExportState().Units) != 0 {
		t.Fatalf("failed transaction leaked state")
	}
}

func TestMemoryStoreUnitLimit(t *testing.T) {
	store := memory.NewStore(nil, memory.WithUnitLimit(1))
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateUnit(domain.TemplateUnit{}); err != nil {
			return err
		}
		_, err := tx.CreateUnit(domain.TemplateUnit{})
		return err
	})
	if !errors.Is(err, domain.ErrPoolExhausted) {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}
	if store.UnitLimit() != 1 {
		t.Fatalf("unexpected limit %d", store.UnitLimit())
	}
}

func TestMemoryStoreGroups(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.PutGroup(domain.GroupTemplate{GroupID: domain.DefaultGroup}); err == nil {
			t.Fatalf("expected default group to be rejected")
		}
		if _, err := tx.PutGroup(domain.GroupTemplate{GroupID: 4, Owner: 1}); err != nil {
			return err
		}
		g, err := tx.UpdateGroup(4, func(g *domain.GroupTemplate) error {
			g.KeepRemainders = true
			g.GroupID = 99
			return nil
		})
		if err != nil {
			return err
		}
		if g.GroupID != 4 || !g.KeepRemainders {
			t.Fatalf("unexpected group %+v", g)
		}
		if _, err := tx.UpdateGroup(5, func(*domain.GroupTemplate) error { return nil }); !domain.IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	}); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if got := len(store.ExportState().Groups); got != 1 {
		t.Fatalf("expected one group, got %d", got)
	}
}

func TestMemoryStorePutChainValidates(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.PutChain(domain.Chain{Head: 7, Tail: 7})
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found for unknown head, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.PutChain(domain.Chain{})
	})
	if !errors.Is(err, domain.ErrInconsistentChain) {
		t.Fatalf("expected inconsistent chain, got %v", err)
	}
}

type blockAll struct{}

func (blockAll) Name() string { return "block_all" }

func (blockAll) Evaluate(context.Context, domain.TransactionView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock}}}, nil
}

func TestMemoryStoreBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAll{})
	store := memory.NewStore(engine)
	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUnit(domain.TemplateUnit{})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if len(store.ExportState().Units) != 0 {
		t.Fatalf("blocked transaction committed")
	}
}

func TestMemoryStoreImportRepairsCounter(t *testing.T) {
	store := memory.NewStore(nil)
	store.ImportState(memory.Snapshot{Units: map[domain.TemplateID]domain.TemplateUnit{9: {ID: 9}}})
	var created domain.TemplateUnit
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateUnit(domain.TemplateUnit{})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 10 {
		t.Fatalf("expected id 10 after import, got %d", created.ID)
	}
}
