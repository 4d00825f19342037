package world

import (
	"context"
	"fmt"

	"tbtr/pkg/domain"
)

func notFound(id domain.VehicleID) error {
	return domain.ErrNotFound{Entity: domain.EntityVehicle, ID: id.String()}
}

// realUnit resolves id to a real (non-marker) vehicle.
func (w *World) realUnit(id domain.VehicleID) (*domain.Vehicle, error) {
	v := w.node(id)
	if v == nil {
		return nil, notFound(id)
	}
	if v.Subtype.IsMarker() {
		return nil, fmt.Errorf("vehicle %d is a marker part", id)
	}
	return v, nil
}

func (w *World) charge(owner domain.OwnerID, cost domain.Money) error {
	if cost > 0 && w.money[owner] < cost {
		return fmt.Errorf("need %d, have %d: %w", cost, w.money[owner], domain.ErrInsufficientFunds)
	}
	w.money[owner] -= cost
	return nil
}

// MoveVehicle implements domain.VehicleOperations. The unit moves with its markers
// and is placed behind the segment of req.After, or on a new line. Moves are free.
func (w *World) MoveVehicle(_ context.Context, req domain.MoveRequest, mode domain.CommandMode) (domain.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkFault(OpMove, mode); err != nil {
		return 0, err
	}
	if mode == domain.ModeDryRun {
		if req.Vehicle != domain.InvalidVehicle && w.node(req.Vehicle) == nil {
			return 0, notFound(req.Vehicle)
		}
		return 0, nil
	}

	v, err := w.realUnit(req.Vehicle)
	if err != nil {
		return 0, err
	}
	if !v.InDepot {
		return 0, fmt.Errorf("move %d: %w", v.ID, ErrNotInDepot)
	}
	if req.After == domain.InvalidVehicle {
		wasHead := v.Prev == domain.InvalidVehicle
		w.detach(v)
		if !wasHead {
			w.promote(v)
		}
		return 0, nil
	}
	after := w.node(req.After)
	if after == nil {
		return 0, notFound(req.After)
	}
	if w.inSegment(v, after) {
		return 0, fmt.Errorf("move %d behind itself", v.ID)
	}
	if after.Tile != v.Tile || !after.InDepot {
		return 0, fmt.Errorf("move %d: destination %d: %w", v.ID, after.ID, ErrNotInDepot)
	}
	if after.Owner != v.Owner {
		return 0, fmt.Errorf("move %d: %w", v.ID, domain.ErrNotOwner)
	}
	w.detach(v)
	w.attach(v, after)
	return 0, nil
}

// BuildVehicle implements domain.VehicleOperations. The new vehicle stands stopped
// in the depot on its own line and costs the engine's purchase price.
func (w *World) BuildVehicle(_ context.Context, req domain.BuildRequest, mode domain.CommandMode) (domain.VehicleID, domain.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkFault(OpBuild, mode); err != nil {
		return domain.InvalidVehicle, 0, err
	}
	e, ok := w.engines[req.Engine]
	if !ok {
		return domain.InvalidVehicle, 0, domain.ErrNotFound{Entity: domain.EntityEngine, ID: req.Engine.String()}
	}
	if _, ok := w.depots[req.Tile]; !ok {
		return domain.InvalidVehicle, 0, fmt.Errorf("build on tile %d: %w", req.Tile, ErrNoDepot)
	}
	if mode == domain.ModeDryRun {
		return domain.InvalidVehicle, e.Cost, nil
	}
	if err := w.charge(req.Owner, e.Cost); err != nil {
		return domain.InvalidVehicle, 0, err
	}
	v := w.spawn(e, req.Owner, req.Tile, true)
	w.promote(v)
	return v.ID, e.Cost, nil
}

// SellVehicle implements domain.VehicleOperations. Selling refunds half of the
// engine's purchase price, so the returned cost is negative. A chain sale checks
// every unit before removing any of them.
func (w *World) SellVehicle(_ context.Context, req domain.SellRequest, mode domain.CommandMode) (domain.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkFault(OpSell, mode); err != nil {
		return 0, err
	}
	v := w.node(req.Vehicle)
	if v == nil {
		if mode == domain.ModeExecute || req.Engine == domain.InvalidEngine || req.Chain {
			return 0, notFound(req.Vehicle)
		}
		refund, err := w.refundOf(req.Engine)
		return -refund, err
	}
	units := []*domain.Vehicle{v}
	if req.Chain {
		units = w.unitsFrom(v)
	}
	var refund domain.Money
	for _, u := range units {
		if mode == domain.ModeExecute {
			if _, err := w.realUnit(u.ID); err != nil {
				return 0, err
			}
			if !u.InDepot {
				return 0, fmt.Errorf("sell %d: %w", u.ID, ErrNotInDepot)
			}
		}
		r, err := w.refundOf(u.EngineType)
		if err != nil {
			return 0, err
		}
		refund += r
	}
	if mode == domain.ModeDryRun {
		return -refund, nil
	}
	if req.Chain {
		w.removeFrom(v)
	} else {
		w.remove(v)
	}
	w.money[v.Owner] += refund
	return -refund, nil
}

func (w *World) refundOf(engine domain.EngineID) (domain.Money, error) {
	e, ok := w.engines[engine]
	if !ok {
		return 0, domain.ErrNotFound{Entity: domain.EntityEngine, ID: engine.String()}
	}
	return e.Cost / 2, nil
}

// RefitVehicle implements domain.VehicleOperations. Changing the cargo costs a
// sixteenth of the purchase price and empties the vehicle.
func (w *World) RefitVehicle(_ context.Context, req domain.RefitRequest, mode domain.CommandMode) (domain.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkFault(OpRefit, mode); err != nil {
		return 0, err
	}
	var (
		e       domain.Engine
		current domain.CargoID
		ok      bool
	)
	v := w.node(req.Vehicle)
	switch {
	case v != nil:
		e, ok = w.engines[v.EngineType]
		current = v.CargoType
	case mode == domain.ModeDryRun:
		e, ok = w.engines[req.Engine]
		current = e.DefaultCargo
	default:
		return 0, notFound(req.Vehicle)
	}
	if !ok {
		return 0, fmt.Errorf("refit %d: %w", req.Vehicle, domain.ErrNotFound{Entity: domain.EntityEngine, ID: req.Engine.String()})
	}
	if !e.CanCarry(req.Cargo) {
		return 0, fmt.Errorf("refit %s to %d: %w", e.Name, req.Cargo, ErrCannotRefit)
	}
	if current == req.Cargo {
		return 0, nil
	}
	cost := e.Cost / 16
	if mode == domain.ModeDryRun {
		return cost, nil
	}
	if err := w.charge(v.Owner, cost); err != nil {
		return 0, err
	}
	fitCargo(v, e, req.Cargo)
	return cost, nil
}

// CopyHeadSpecificThings implements domain.TrainOperations.
func (w *World) CopyHeadSpecificThings(_ context.Context, from, to domain.VehicleID, mode domain.CommandMode) (domain.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkFault(OpCopy, mode); err != nil {
		return 0, err
	}
	if mode == domain.ModeDryRun || from == to {
		return 0, nil
	}
	src, dst := w.node(from), w.node(to)
	if src == nil {
		return 0, notFound(from)
	}
	if dst == nil {
		return 0, notFound(to)
	}
	if !dst.IsPrimary() {
		return 0, fmt.Errorf("copy to %d: %w", to, ErrNotPrimary)
	}
	dst.Name = src.Name
	dst.Orders = append([]string(nil), src.Orders...)
	dst.GroupID = src.GroupID
	dst.UnitNumber = src.UnitNumber
	dst.ServiceInterval = src.ServiceInterval
	return 0, nil
}

// NeutralizeStatus implements domain.TrainOperations. The vehicle leaves its group,
// loses its orders, gets a fresh unit number and stops.
func (w *World) NeutralizeStatus(_ context.Context, id domain.VehicleID, mode domain.CommandMode) (domain.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkFault(OpNeutralize, mode); err != nil {
		return 0, err
	}
	v := w.node(id)
	if v == nil {
		return 0, notFound(id)
	}
	if mode == domain.ModeDryRun {
		return 0, nil
	}
	if !v.IsPrimary() {
		return 0, fmt.Errorf("neutralize %d: %w", id, ErrNotPrimary)
	}
	v.GroupID = domain.DefaultGroup
	v.Orders = nil
	v.ServiceInterval = 0
	v.Stopped = true
	v.UnitNumber = w.allocUnitNumber(v.Owner)
	return 0, nil
}

// SetStopped implements domain.TrainOperations.
func (w *World) SetStopped(_ context.Context, id domain.VehicleID, stopped bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.node(id)
	if v == nil {
		return notFound(id)
	}
	if !v.IsPrimary() {
		return fmt.Errorf("start/stop %d: %w", id, ErrNotPrimary)
	}
	v.Stopped = stopped
	return nil
}

// ShiftCargo implements domain.TrainOperations.
func (w *World) ShiftCargo(_ context.Context, from, to domain.VehicleID, amount uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	src, dst := w.node(from), w.node(to)
	if src == nil {
		return notFound(from)
	}
	if dst == nil {
		return notFound(to)
	}
	if src.CargoType != dst.CargoType {
		return fmt.Errorf("shift cargo %d->%d: cargo types differ", from, to)
	}
	if amount > src.CargoCount || amount > dst.CargoCap-dst.CargoCount {
		return fmt.Errorf("shift cargo %d->%d: %d does not fit", from, to, amount)
	}
	src.CargoCount -= amount
	dst.CargoCount += amount
	return nil
}

// RestoreVehicleState implements domain.TrainOperations.
func (w *World) RestoreVehicleState(_ context.Context, state domain.VehicleState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, err := w.realUnit(state.Vehicle)
	if err != nil {
		return err
	}
	if state.CargoType != v.CargoType {
		e, ok := w.engines[v.EngineType]
		if !ok || !e.CanCarry(state.CargoType) {
			return fmt.Errorf("restore %d to cargo %d: %w", v.ID, state.CargoType, ErrCannotRefit)
		}
		fitCargo(v, e, state.CargoType)
	}
	if state.CargoCount > v.CargoCap {
		return fmt.Errorf("restore %d: %d cargo does not fit", v.ID, state.CargoCount)
	}
	v.CargoCount = state.CargoCount
	v.Name = state.Name
	v.UnitNumber = state.UnitNumber
	v.Orders = append([]string(nil), state.Orders...)
	v.GroupID = state.GroupID
	v.ServiceInterval = state.ServiceInterval
	return nil
}
