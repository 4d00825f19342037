package scenario

import (
	"context"
	"fmt"

	"tbtr/internal/world"
	"tbtr/pkg/domain"
)

// WorldBuilder is the part of the game state a scenario populates.
type WorldBuilder interface {
	AddEngine(e domain.Engine) error
	AddDepot(tile domain.TileIndex)
	AddGroup(g domain.Group) error
	SetMoney(owner domain.OwnerID, amount domain.Money)
	SetZoom(scale int)
	PlaceTrain(p world.Placement) (domain.VehicleID, error)
	Crash(id domain.VehicleID) error
}

// TemplateCommands is the part of the command surface used to build templates.
type TemplateCommands interface {
	AddEngine(ctx context.Context, owner domain.OwnerID, target domain.TemplateID, engine domain.EngineID, insertAfter bool) (domain.TemplateUnit, error)
	RefitTemplate(ctx context.Context, id domain.TemplateID, cargo domain.CargoID, singleUnit bool) (int, error)
	StartReplacement(ctx context.Context, owner domain.OwnerID, group domain.GroupID, head domain.TemplateID) (domain.GroupTemplate, error)
	ToggleOption(ctx context.Context, group domain.GroupID, opt domain.ReplacementOption) (domain.GroupTemplate, error)
}

// Setup lists what Apply created, in scenario order.
type Setup struct {
	Templates []domain.TemplateID
	Trains    []domain.VehicleID
}

// Apply populates w from the scenario and builds its templates through cmds.
func (sc *Scenario) Apply(ctx context.Context, w WorldBuilder, cmds TemplateCommands) (Setup, error) {
	var setup Setup
	for _, e := range sc.Engines {
		if err := w.AddEngine(e); err != nil {
			return setup, fmt.Errorf("engine %q: %w", e.Name, err)
		}
	}
	for _, d := range sc.Depots {
		w.AddDepot(domain.TileIndex(d))
	}
	for _, c := range sc.Companies {
		w.SetMoney(c.Owner, c.Money)
	}
	for _, g := range sc.Groups {
		if err := w.AddGroup(g); err != nil {
			return setup, fmt.Errorf("group %d: %w", g.ID, err)
		}
	}
	if sc.Zoom > 0 {
		w.SetZoom(sc.Zoom)
	}

	for i, tpl := range sc.Templates {
		head, err := sc.buildTemplate(ctx, cmds, tpl)
		if err != nil {
			return setup, fmt.Errorf("template %d: %w", i, err)
		}
		setup.Templates = append(setup.Templates, head)
		for _, g := range tpl.Groups {
			if err := assign(ctx, cmds, tpl, g, head); err != nil {
				return setup, fmt.Errorf("template %d group %d: %w", i, g, err)
			}
		}
	}

	for _, tr := range sc.Trains {
		p := world.Placement{
			Owner:   tr.Owner,
			Tile:    domain.TileIndex(tr.Tile),
			InDepot: tr.InDepot,
			Stopped: tr.Stopped,
			GroupID: tr.Group,
			Name:    tr.Name,
			Orders:  tr.Orders,
		}
		for _, u := range tr.Units {
			e, _ := sc.EngineByName(u.Engine)
			p.Units = append(p.Units, world.UnitPlacement{Engine: e.ID, Cargo: u.Cargo, CargoCount: u.Load})
		}
		id, err := w.PlaceTrain(p)
		if err != nil {
			return setup, fmt.Errorf("train %q: %w", tr.Name, err)
		}
		if tr.Crashed {
			if err := w.Crash(id); err != nil {
				return setup, err
			}
		}
		setup.Trains = append(setup.Trains, id)
	}
	return setup, nil
}

func (sc *Scenario) buildTemplate(ctx context.Context, cmds TemplateCommands, tpl Template) (domain.TemplateID, error) {
	head := domain.InvalidTemplate
	for _, u := range tpl.Units {
		e, ok := sc.EngineByName(u.Engine)
		if !ok {
			return domain.InvalidTemplate, fmt.Errorf("unknown engine %q", u.Engine)
		}
		unit, err := cmds.AddEngine(ctx, tpl.Owner, head, e.ID, false)
		if err != nil {
			return domain.InvalidTemplate, fmt.Errorf("add %q: %w", u.Engine, err)
		}
		if head == domain.InvalidTemplate {
			head = unit.ID
		}
		if u.Cargo != nil && *u.Cargo != e.DefaultCargo {
			if _, err := cmds.RefitTemplate(ctx, unit.ID, *u.Cargo, true); err != nil {
				return domain.InvalidTemplate, fmt.Errorf("refit %q: %w", u.Engine, err)
			}
		}
	}
	return head, nil
}

func assign(ctx context.Context, cmds TemplateCommands, tpl Template, group domain.GroupID, head domain.TemplateID) error {
	assoc, err := cmds.StartReplacement(ctx, tpl.Owner, group, head)
	if err != nil {
		return err
	}
	want := []struct {
		opt     domain.ReplacementOption
		current bool
		desired bool
	}{
		{domain.OptionReuseDepotVehicles, assoc.ReuseDepotVehicles, tpl.ReuseDepotVehicles},
		{domain.OptionKeepRemainders, assoc.KeepRemainders, tpl.KeepRemainders},
		{domain.OptionRefitAsTemplate, assoc.RefitAsTemplate, tpl.RefitAsTemplate},
	}
	for _, w := range want {
		if w.current == w.desired {
			continue
		}
		if _, err := cmds.ToggleOption(ctx, group, w.opt); err != nil {
			return err
		}
	}
	return nil
}
