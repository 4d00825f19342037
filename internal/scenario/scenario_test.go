package scenario_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tbtr/internal/core"
	"tbtr/internal/scenario"
	"tbtr/internal/world"
	"tbtr/pkg/domain"
)

func TestLoadAndApply(t *testing.T) {
	sc, err := scenario.Load("testdata/coal.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Name != "coal line" || len(sc.Engines) != 3 || len(sc.Trains) != 2 {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	wagon, ok := sc.EngineByName("Coal Wagon")
	if !ok || !wagon.Wagon || wagon.RefitCapacities[3] != 20 {
		t.Fatalf("unexpected wagon %+v", wagon)
	}

	ctx := context.Background()
	w := world.New()
	svc := core.NewInMemoryService(w)
	setup, err := sc.Apply(ctx, w, svc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(setup.Templates) != 1 || len(setup.Trains) != 2 {
		t.Fatalf("unexpected setup %+v", setup)
	}
	if w.Money(1) != 100000 {
		t.Fatalf("expected money to be seeded, got %d", w.Money(1))
	}

	units, err := svc.TemplateUnits(ctx, setup.Templates[0])
	if err != nil {
		t.Fatalf("template units: %v", err)
	}
	if len(units) != 3 || units[2].CargoType != 3 || units[1].CargoType != 1 {
		t.Fatalf("expected last wagon refitted to cargo 3, got %+v", units)
	}
	assoc, ok, err := svc.GroupTemplate(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("group template: %v %v", ok, err)
	}
	if assoc.TemplateID != setup.Templates[0] || !assoc.RefitAsTemplate || assoc.KeepRemainders || assoc.ReuseDepotVehicles {
		t.Fatalf("unexpected association %+v", assoc)
	}

	coal, ok := w.Vehicle(setup.Trains[0])
	if !ok || !coal.Stopped || coal.GroupID != 5 || coal.Name != "Coal 1" || len(coal.Orders) != 2 {
		t.Fatalf("unexpected train %+v", coal)
	}
	wreck, _ := w.Vehicle(setup.Trains[1])
	if !wreck.Crashed || wreck.InDepot {
		t.Fatalf("expected crashed train outside depot, got %+v", wreck)
	}

	_, replaced, err := svc.HandleDepotArrival(ctx, setup.Trains[0], true)
	if err != nil || !replaced {
		t.Fatalf("depot arrival: replaced=%v err=%v", replaced, err)
	}
}

func TestParseRejectsBrokenScenarios(t *testing.T) {
	base := `
depots: [7]
engines:
  - {id: 1, name: Kirby Paul Tank, cost: 1000}
groups:
  - {id: 5, owner: 1, name: Coal}
`
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "empty scenario"},
		{name: "unknown field", doc: base + "colour: red\n", want: "field colour not found"},
		{name: "misspelt engine", doc: base + "templates:\n  - owner: 1\n    units: [{engine: Kirby Paul Tnak}]\n",
			want: `unknown engine "Kirby Paul Tnak" (did you mean "Kirby Paul Tank"?)`},
		{name: "unrelated engine", doc: base + "templates:\n  - owner: 1\n    units: [{engine: Flying Scotsman}]\n",
			want: `unknown engine "Flying Scotsman"; `},
		{name: "unknown group", doc: base + "templates:\n  - owner: 1\n    groups: [8]\n    units: [{engine: Kirby Paul Tank}]\n",
			want: "unknown group 8"},
		{name: "no units", doc: base + "trains:\n  - {name: Empty, owner: 1, tile: 7, in_depot: true}\n",
			want: `train "Empty" has no units`},
		{name: "depot missing", doc: base + "trains:\n  - owner: 1\n    tile: 3\n    in_depot: true\n    units: [{engine: Kirby Paul Tank}]\n",
			want: "tile 3 is not a depot"},
		{name: "duplicate engine", doc: "engines:\n  - {id: 1, name: Tank}\n  - {id: 2, name: Tank}\n", want: `engine name "Tank" used twice`},
		{name: "reserved group", doc: "groups:\n  - {id: 0, owner: 1, name: All}\n", want: "reserved id 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := scenario.Parse(strings.NewReader(tc.doc))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error()+"; ", tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	_, err := scenario.Parse(strings.NewReader(base + "templates:\n  - owner: 1\n    units: [{engine: Nope}]\n"))
	if !errors.Is(err, scenario.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

type failingCommands struct{ scenario.TemplateCommands }

func (failingCommands) AddEngine(context.Context, domain.OwnerID, domain.TemplateID, domain.EngineID, bool) (domain.TemplateUnit, error) {
	return domain.TemplateUnit{}, domain.ErrPoolExhausted
}

func TestApplySurfacesCommandErrors(t *testing.T) {
	sc, err := scenario.Load("testdata/coal.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = sc.Apply(context.Background(), world.New(), failingCommands{})
	if !errors.Is(err, domain.ErrPoolExhausted) || !strings.Contains(err.Error(), "template 0") {
		t.Fatalf("expected pool exhaustion for template 0, got %v", err)
	}
}
