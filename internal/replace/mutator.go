package replace

import (
	"context"
	"fmt"

	"tbtr/pkg/domain"
)

// mutator applies the sub-operations of one replacement attempt. The execute and
// estimate implementations share the algorithm and differ only in what they change.
type mutator interface {
	mode() domain.CommandMode
	move(ctx context.Context, vehicle, after domain.VehicleID, engine domain.EngineID) (domain.Money, error)
	build(ctx context.Context, req domain.BuildRequest) (domain.VehicleID, domain.Money, error)
	refit(ctx context.Context, vehicle domain.VehicleID, engine domain.EngineID, cargo domain.CargoID) (domain.Money, error)
	sell(ctx context.Context, vehicle domain.VehicleID, engine domain.EngineID) (domain.Money, error)
	sellChain(ctx context.Context, vehicles []domain.Vehicle) (domain.Money, error)
	copyHead(ctx context.Context, from, to domain.VehicleID) (domain.Money, error)
	neutralize(ctx context.Context, id domain.VehicleID) (domain.Money, error)
	shiftCargo(ctx context.Context, from, to domain.VehicleID, amount uint16) error
	setStopped(ctx context.Context, head domain.VehicleID, stopped bool) error
}

type stateMutator struct {
	state domain.GameState
	m     domain.CommandMode
}

func (s stateMutator) mode() domain.CommandMode { return s.m }

func (s stateMutator) move(ctx context.Context, vehicle, after domain.VehicleID, engine domain.EngineID) (domain.Money, error) {
	return s.state.MoveVehicle(ctx, domain.MoveRequest{Vehicle: vehicle, After: after, Engine: engine}, s.m)
}

func (s stateMutator) build(ctx context.Context, req domain.BuildRequest) (domain.VehicleID, domain.Money, error) {
	return s.state.BuildVehicle(ctx, req, s.m)
}

func (s stateMutator) refit(ctx context.Context, vehicle domain.VehicleID, engine domain.EngineID, cargo domain.CargoID) (domain.Money, error) {
	return s.state.RefitVehicle(ctx, domain.RefitRequest{Vehicle: vehicle, Engine: engine, Cargo: cargo}, s.m)
}

func (s stateMutator) sell(ctx context.Context, vehicle domain.VehicleID, engine domain.EngineID) (domain.Money, error) {
	return s.state.SellVehicle(ctx, domain.SellRequest{Vehicle: vehicle, Engine: engine}, s.m)
}

func (s stateMutator) copyHead(ctx context.Context, from, to domain.VehicleID) (domain.Money, error) {
	return s.state.CopyHeadSpecificThings(ctx, from, to, s.m)
}

func (s stateMutator) neutralize(ctx context.Context, id domain.VehicleID) (domain.Money, error) {
	return s.state.NeutralizeStatus(ctx, id, s.m)
}

// executeMutator changes the game state.
type executeMutator struct{ stateMutator }

func newExecuteMutator(state domain.GameState) executeMutator {
	return executeMutator{stateMutator{state: state, m: domain.ModeExecute}}
}

// sellChain sells vehicles with one chain sale. They must form a whole line, head
// first, so nothing else goes with them.
func (e executeMutator) sellChain(ctx context.Context, vehicles []domain.Vehicle) (domain.Money, error) {
	if len(vehicles) == 0 {
		return 0, nil
	}
	first := vehicles[0]
	nodes, err := e.state.Chain(first.ID)
	if err != nil {
		return 0, err
	}
	line := domain.RealUnits(nodes)
	if len(line) != len(vehicles) {
		return 0, fmt.Errorf("line of %d holds %d units, expected %d", first.ID, len(line), len(vehicles))
	}
	for i := range line {
		if line[i].ID != vehicles[i].ID {
			return 0, fmt.Errorf("line of %d: unit %d is %d, expected %d", first.ID, i, line[i].ID, vehicles[i].ID)
		}
	}
	return e.state.SellVehicle(ctx, domain.SellRequest{Vehicle: first.ID, Engine: first.EngineType, Chain: true}, e.m)
}

func (e executeMutator) shiftCargo(ctx context.Context, from, to domain.VehicleID, amount uint16) error {
	return e.state.ShiftCargo(ctx, from, to, amount)
}

func (e executeMutator) setStopped(ctx context.Context, head domain.VehicleID, stopped bool) error {
	return e.state.SetStopped(ctx, head, stopped)
}

// estimateMutator prices every operation in dry-run mode. Cargo and start/stop state
// are not part of the price and are left alone.
type estimateMutator struct{ stateMutator }

func newEstimateMutator(state domain.GameState) estimateMutator {
	return estimateMutator{stateMutator{state: state, m: domain.ModeDryRun}}
}

// sellChain prices every vehicle on its own: in a dry run they still sit in the
// original train.
func (e estimateMutator) sellChain(ctx context.Context, vehicles []domain.Vehicle) (domain.Money, error) {
	var total domain.Money
	for _, v := range vehicles {
		cost, err := e.sell(ctx, v.ID, v.EngineType)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

func (estimateMutator) shiftCargo(context.Context, domain.VehicleID, domain.VehicleID, uint16) error {
	return nil
}

func (estimateMutator) setStopped(context.Context, domain.VehicleID, bool) error { return nil }
