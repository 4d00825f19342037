package core

import (
	"context"
	"errors"
	"testing"

	"tbtr/internal/world"
	"tbtr/pkg/domain"
)

const (
	engineLoco domain.EngineID = iota + 1
	engineWagon
	engineElectric
	engineOldLoco
)

const (
	depot      domain.TileIndex = 7
	player     domain.OwnerID   = 1
	rival      domain.OwnerID   = 2
	freight    domain.GroupID   = 5
	rivalGroup domain.GroupID   = 6
	emptyGroup domain.GroupID   = 9
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New()
	for _, e := range []domain.Engine{
		{ID: engineLoco, Name: "Kirby Paul", Cost: 1000, Capacity: 0},
		{ID: engineWagon, Name: "Coal Truck", Wagon: true, Cost: 400, DefaultCargo: 1, Capacity: 30,
			RefitCapacities: map[domain.CargoID]uint16{3: 20}},
		{ID: engineElectric, Name: "Chaney Jubilee", RailType: domain.RailTypeElectric, Cost: 1500},
		{ID: engineOldLoco, Name: "Ploddyphut", Cost: 600},
	} {
		if err := w.AddEngine(e); err != nil {
			t.Fatalf("add engine: %v", err)
		}
	}
	w.AddDepot(depot)
	for _, g := range []domain.Group{
		{ID: freight, Owner: player, Name: "freight"},
		{ID: rivalGroup, Owner: rival, Name: "rival"},
		{ID: emptyGroup, Owner: player, Name: "empty"},
	} {
		if err := w.AddGroup(g); err != nil {
			t.Fatalf("add group: %v", err)
		}
	}
	w.SetMoney(player, 100000)
	return w
}

func newTestService(t *testing.T, opts ...Option) (*Service, *world.World) {
	t.Helper()
	w := newTestWorld(t)
	return NewInMemoryService(w, opts...), w
}

// buildTemplate creates loco + wagon + wagon for player.
func buildTemplate(t *testing.T, svc *Service) domain.TemplateID {
	t.Helper()
	ctx := context.Background()
	head, err := svc.AddEngine(ctx, player, domain.InvalidTemplate, engineLoco, false)
	if err != nil {
		t.Fatalf("add head: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.AddEngine(ctx, player, head.ID, engineWagon, false); err != nil {
			t.Fatalf("add wagon: %v", err)
		}
	}
	return head.ID
}

func placeOldTrain(t *testing.T, w *world.World, group domain.GroupID) domain.VehicleID {
	t.Helper()
	head, err := w.PlaceTrain(world.Placement{Owner: player, Tile: depot, InDepot: true, Stopped: true,
		GroupID: group, Name: "Coal 1", Orders: []string{"mine", "plant"},
		Units: []world.UnitPlacement{{Engine: engineOldLoco}, {Engine: engineWagon}}})
	if err != nil {
		t.Fatalf("place train: %v", err)
	}
	return head
}

func engines(t *testing.T, w *world.World, head domain.VehicleID) []domain.EngineID {
	t.Helper()
	nodes, err := w.Chain(head)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	var out []domain.EngineID
	for _, v := range domain.RealUnits(nodes) {
		out = append(out, v.EngineType)
	}
	return out
}

func equalEngines(a, b []domain.EngineID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTemplateCommands(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	head := buildTemplate(t, svc)

	cost, err := svc.TemplateCost(ctx, head)
	if err != nil || cost != 1800 {
		t.Fatalf("expected cost 1800, got %d (%v)", cost, err)
	}
	units, err := svc.TemplateUnits(ctx, head)
	if err != nil || len(units) != 3 {
		t.Fatalf("expected 3 units, got %d (%v)", len(units), err)
	}

	if _, err := svc.AddEngine(ctx, rival, head, engineWagon, false); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for a rival edit, got %v", err)
	}
	if _, err := svc.AddEngine(ctx, player, head, 99, false); !domain.IsNotFound(err) {
		t.Fatalf("expected unknown engine to be reported, got %v", err)
	}

	n, err := svc.RefitTemplate(ctx, head, 3, false)
	if err != nil || n != 2 {
		t.Fatalf("expected both wagons refitted, got %d (%v)", n, err)
	}
	units, _ = svc.TemplateUnits(ctx, head)
	if units[1].CargoType != 3 || units[1].CargoCap != 20 {
		t.Fatalf("expected refitted wagon with capacity 20, got %+v", units[1])
	}

	got, err := svc.DeleteEngine(ctx, units[1].ID, false)
	if err != nil || got != head {
		t.Fatalf("expected tail deletion to keep head %d, got %d (%v)", head, got, err)
	}
	units, _ = svc.TemplateUnits(ctx, head)
	if len(units) != 2 {
		t.Fatalf("expected 2 units after tail deletion, got %d", len(units))
	}

	electric, err := svc.AddEngine(ctx, player, domain.InvalidTemplate, engineElectric, false)
	if err != nil {
		t.Fatalf("add electric: %v", err)
	}
	tests := []struct {
		name     string
		owner    domain.OwnerID
		railType domain.RailType
		want     []domain.TemplateID
	}{
		{name: "all", owner: player, railType: domain.InvalidRailType, want: []domain.TemplateID{head, electric.ID}},
		{name: "rail", owner: player, railType: domain.RailTypeRail, want: []domain.TemplateID{head}},
		{name: "electric", owner: player, railType: domain.RailTypeElectric, want: []domain.TemplateID{electric.ID}},
		{name: "rival", owner: rival, railType: domain.InvalidRailType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			list, err := svc.ListTemplates(ctx, tc.owner, tc.railType)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != len(tc.want) {
				t.Fatalf("expected %d templates, got %+v", len(tc.want), list)
			}
			for i, s := range list {
				if s.Chain.Head != tc.want[i] {
					t.Fatalf("expected head %d at %d, got %d", tc.want[i], i, s.Chain.Head)
				}
			}
		})
	}

	if err := svc.DeleteTemplate(ctx, electric.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if err := svc.DeleteTemplate(ctx, electric.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected deleted template to be gone, got %v", err)
	}
	if err := svc.DeleteTemplate(ctx, units[1].ID); !domain.IsNotFound(err) {
		t.Fatalf("only chain heads name a template, got %v", err)
	}
	if got, err := svc.DeleteEngine(ctx, head, true); err != nil || got != domain.InvalidTemplate {
		t.Fatalf("expected whole chain deletion, got %d (%v)", got, err)
	}
}

func TestCloneTemplate(t *testing.T) {
	svc, w := newTestService(t)
	ctx := context.Background()
	train := placeOldTrain(t, w, freight)

	if _, err := svc.CloneTemplate(ctx, rival, train); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	nodes, _ := w.Chain(train)
	clone, err := svc.CloneTemplate(ctx, player, nodes[len(nodes)-1].ID)
	if err != nil {
		t.Fatalf("clone from tail: %v", err)
	}
	units, err := svc.TemplateUnits(ctx, clone.ID)
	if err != nil || len(units) != 2 || units[0].EngineType != engineOldLoco {
		t.Fatalf("expected clone of the whole train, got %+v (%v)", units, err)
	}
	if clone.RealLength == 0 {
		t.Fatalf("expected clone head to record the train length")
	}
}

func TestGroupAssociation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	head := buildTemplate(t, svc)

	if _, err := svc.StartReplacement(ctx, player, rivalGroup, head); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected rival group to be refused, got %v", err)
	}
	if _, err := svc.StartReplacement(ctx, player, 77, head); !domain.IsNotFound(err) {
		t.Fatalf("expected unknown group, got %v", err)
	}
	if _, err := svc.StartReplacement(ctx, player, freight, 4242); !domain.IsNotFound(err) {
		t.Fatalf("expected unknown template, got %v", err)
	}

	assoc, err := svc.ToggleOption(ctx, freight, domain.OptionKeepRemainders)
	if err != nil || !assoc.KeepRemainders || assoc.HasTemplate() {
		t.Fatalf("expected option on a template-less association, got %+v (%v)", assoc, err)
	}
	assoc, err = svc.StartReplacement(ctx, player, freight, head)
	if err != nil || assoc.TemplateID != head || !assoc.KeepRemainders {
		t.Fatalf("expected template assigned with options kept, got %+v (%v)", assoc, err)
	}
	for _, opt := range []domain.ReplacementOption{domain.OptionRefitAsTemplate, domain.OptionReuseDepotVehicles, domain.OptionKeepRemainders} {
		if _, err := svc.ToggleOption(ctx, freight, opt); err != nil {
			t.Fatalf("toggle %s: %v", opt, err)
		}
	}
	assoc, found, err := svc.GroupTemplate(ctx, freight)
	if err != nil || !found {
		t.Fatalf("expected association, got %v", err)
	}
	if !assoc.RefitAsTemplate || !assoc.ReuseDepotVehicles || assoc.KeepRemainders {
		t.Fatalf("unexpected options %+v", assoc)
	}
	if _, err := svc.ToggleOption(ctx, freight, domain.ReplacementOption(42)); err == nil {
		t.Fatalf("expected unknown option to fail")
	}

	list, _ := svc.ListTemplates(ctx, player, domain.InvalidRailType)
	if len(list) != 1 || list[0].Groups != 1 {
		t.Fatalf("expected the template to be used by one group, got %+v", list)
	}

	if err := svc.StopReplacement(ctx, freight); err != nil {
		t.Fatalf("stop: %v", err)
	}
	assoc, _, _ = svc.GroupTemplate(ctx, freight)
	if assoc.HasTemplate() {
		t.Fatalf("expected template detached, got %+v", assoc)
	}
	if err := svc.StopReplacement(ctx, emptyGroup); err != nil {
		t.Fatalf("stopping a group without association: %v", err)
	}

	if _, err := svc.StartReplacement(ctx, player, freight, head); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := svc.DeleteTemplate(ctx, head); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assoc, _, _ = svc.GroupTemplate(ctx, freight)
	if assoc.HasTemplate() {
		t.Fatalf("expected deleting the template to clear the group, got %+v", assoc)
	}
}

func TestReplaceTrain(t *testing.T) {
	svc, w := newTestService(t)
	ctx := context.Background()
	head := buildTemplate(t, svc)
	train := placeOldTrain(t, w, freight)

	if _, err := svc.ReplaceTrain(ctx, player, train, false); !errors.Is(err, domain.ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate before the group has a template, got %v", err)
	}
	if _, err := svc.StartReplacement(ctx, player, freight, head); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, err := svc.CountTrainsToReplace(ctx, freight); err != nil || n != 1 {
		t.Fatalf("expected one train due, got %d (%v)", n, err)
	}
	if _, err := svc.ReplaceTrain(ctx, rival, train, false); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	// buy loco 1000, keep one wagon, buy wagon 400, sell old loco -300
	est, err := svc.EstimateReplacement(ctx, player, train)
	if err != nil || est != 1100 {
		t.Fatalf("expected estimate 1100, got %d (%v)", est, err)
	}
	out, err := svc.ReplaceTrain(ctx, player, train, false)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if out.Cost != est {
		t.Fatalf("expected executed cost %d to match the estimate, got %d", est, out.Cost)
	}
	if got := engines(t, w, out.NewHead); !equalEngines(got, []domain.EngineID{engineLoco, engineWagon, engineWagon}) {
		t.Fatalf("unexpected new chain %v", got)
	}
	if got := w.Money(player); got != 100000-1100 {
		t.Fatalf("expected money 98900, got %d", got)
	}
	newHead, _ := w.Vehicle(out.NewHead)
	if newHead.GroupID != freight || newHead.Name != "Coal 1" {
		t.Fatalf("expected head attributes copied, got %+v", newHead)
	}
	if n, _ := svc.CountTrainsToReplace(ctx, freight); n != 0 {
		t.Fatalf("expected nothing due after replacement, got %d", n)
	}
	if n, _ := svc.CountTrainsToReplace(ctx, emptyGroup); n != 0 {
		t.Fatalf("expected a group without template to count zero, got %d", n)
	}
}

func TestReplaceTrainRefused(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*world.World, domain.VehicleID)
		want   error
	}{
		{name: "crashed", mutate: func(w *world.World, id domain.VehicleID) { _ = w.Crash(id) }, want: domain.ErrCommandFailed},
		{name: "insufficient funds", mutate: func(w *world.World, _ domain.VehicleID) { w.SetMoney(player, 500) }, want: domain.ErrInsufficientFunds},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, w := newTestService(t)
			ctx := context.Background()
			head := buildTemplate(t, svc)
			train := placeOldTrain(t, w, freight)
			if _, err := svc.StartReplacement(ctx, player, freight, head); err != nil {
				t.Fatalf("start: %v", err)
			}
			before := engines(t, w, train)
			tc.mutate(w, train)
			if _, err := svc.ReplaceTrain(ctx, player, train, false); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := engines(t, w, train); !equalEngines(got, before) {
				t.Fatalf("expected train untouched, got %v", got)
			}
		})
	}
}

func TestHandleDepotArrival(t *testing.T) {
	svc, w := newTestService(t)
	ctx := context.Background()
	head := buildTemplate(t, svc)
	if _, err := svc.StartReplacement(ctx, player, freight, head); err != nil {
		t.Fatalf("start: %v", err)
	}

	ungrouped := placeOldTrain(t, w, domain.DefaultGroup)
	if _, replaced, err := svc.HandleDepotArrival(ctx, ungrouped, false); err != nil || replaced {
		t.Fatalf("expected ungrouped train to be skipped, got %v (%v)", replaced, err)
	}
	outside, err := w.PlaceTrain(world.Placement{Owner: player, Tile: 99, GroupID: freight,
		Units: []world.UnitPlacement{{Engine: engineOldLoco}}})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, replaced, err := svc.HandleDepotArrival(ctx, outside, false); err != nil || replaced {
		t.Fatalf("expected train outside a depot to be skipped, got %v (%v)", replaced, err)
	}

	train := placeOldTrain(t, w, freight)
	out, replaced, err := svc.HandleDepotArrival(ctx, train, true)
	if err != nil || !replaced {
		t.Fatalf("expected replacement, got %v (%v)", replaced, err)
	}
	newHead, _ := w.Vehicle(out.NewHead)
	if !newHead.Stopped {
		t.Fatalf("expected the new train to stay in the depot")
	}
	if _, replaced, err := svc.HandleDepotArrival(ctx, out.NewHead, false); err != nil || replaced {
		t.Fatalf("expected matching train to be left alone, got %v (%v)", replaced, err)
	}
	if _, _, err := svc.HandleDepotArrival(ctx, 4242, false); !domain.IsNotFound(err) {
		t.Fatalf("expected unknown train, got %v", err)
	}
}

func TestResetWorldClearsCaches(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	head := buildTemplate(t, svc)
	if width, err := svc.TemplateWidth(ctx, head); err != nil || width <= 0 {
		t.Fatalf("expected a positive template width, got %d (%v)", width, err)
	}
	if stats := svc.CapacityStats(); stats.CachedValues == 0 {
		t.Fatalf("expected capacities cached while building, got %+v", stats)
	}
	if err := svc.ResetWorld(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if stats := svc.CapacityStats(); stats.CachedValues != 0 || stats.Probes != 0 {
		t.Fatalf("expected capacity cache cleared, got %+v", stats)
	}
	if svc.display.Len() != 0 {
		t.Fatalf("expected display cache to be empty after reset")
	}
	if svc.Store() == nil {
		t.Fatalf("expected store")
	}
}
