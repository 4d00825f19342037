package world

import (
	"fmt"
	"sort"

	"tbtr/pkg/domain"
)

// UnitPlacement describes one real unit of a placed train. Cargo overrides the
// engine's default cargo when set.
type UnitPlacement struct {
	Engine     domain.EngineID
	Cargo      *domain.CargoID
	CargoCount uint16
}

// Placement describes a train to put into the world.
type Placement struct {
	Owner           domain.OwnerID
	Tile            domain.TileIndex
	InDepot         bool
	Stopped         bool
	GroupID         domain.GroupID
	Name            string
	Orders          []string
	ServiceInterval uint16
	Units           []UnitPlacement
}

// PlaceTrain creates a train from p and returns its head.
func (w *World) PlaceTrain(p Placement) (domain.VehicleID, error) {
	if len(p.Units) == 0 {
		return domain.InvalidVehicle, fmt.Errorf("place train: no units")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if p.GroupID != domain.DefaultGroup {
		if _, ok := w.groups[p.GroupID]; !ok {
			return domain.InvalidVehicle, domain.ErrNotFound{Entity: domain.EntityGroup, ID: p.GroupID.String()}
		}
	}
	for _, u := range p.Units {
		e, ok := w.engines[u.Engine]
		if !ok {
			return domain.InvalidVehicle, domain.ErrNotFound{Entity: domain.EntityEngine, ID: u.Engine.String()}
		}
		if u.Cargo != nil && !e.CanCarry(*u.Cargo) {
			return domain.InvalidVehicle, fmt.Errorf("place %s: %w", e.Name, ErrCannotRefit)
		}
	}

	var head, tail *domain.Vehicle
	for _, u := range p.Units {
		e := w.engines[u.Engine]
		seg := w.spawn(e, p.Owner, p.Tile, p.InDepot)
		if u.Cargo != nil {
			seg.CargoType = *u.Cargo
			seg.CargoCap = capacityOf(e, *u.Cargo)
		}
		seg.CargoCount = min(u.CargoCount, seg.CargoCap)
		if head == nil {
			head = seg
		} else {
			w.attach(seg, tail)
		}
		tail = w.segmentEnd(seg)
	}
	w.promote(head)
	head.Stopped = p.Stopped
	if head.Subtype.Has(domain.SubtypeFront) {
		head.GroupID = p.GroupID
		head.Name = p.Name
		head.Orders = append([]string(nil), p.Orders...)
		head.ServiceInterval = p.ServiceInterval
	}
	return head.ID, nil
}

// spawn creates a standalone unit of e with its articulated parts and rear head.
func (w *World) spawn(e domain.Engine, owner domain.OwnerID, tile domain.TileIndex, inDepot bool) *domain.Vehicle {
	length := e.Length
	if length == 0 {
		length = defaultVehicleLength
	}
	newNode := func(subtype domain.Subtype) *domain.Vehicle {
		v := &domain.Vehicle{
			ID:                w.nextID,
			EngineType:        e.ID,
			Subtype:           subtype,
			RailType:          e.RailType,
			CargoType:         e.DefaultCargo,
			CargoCap:          e.Capacity,
			Owner:             owner,
			Tile:              tile,
			InDepot:           inDepot,
			MaxSpeed:          e.MaxSpeed,
			Power:             e.Power,
			Weight:            e.Weight,
			MaxTractiveEffort: e.MaxTractiveEffort,
			Length:            length,
		}
		w.nextID++
		w.vehicles[v.ID] = v
		return v
	}

	kind := domain.SubtypeEngine
	if e.Wagon {
		kind = domain.SubtypeWagon
	}
	if e.Multiheaded {
		kind |= domain.SubtypeMultiheaded
	}
	head := newNode(kind)
	last := head
	link := func(v *domain.Vehicle) {
		last.Next = v.ID
		v.Prev = last.ID
		last = v
	}
	for i := 0; i < e.ArticulatedParts; i++ {
		part := newNode(kind&^domain.SubtypeMultiheaded | domain.SubtypeArticulatedPart)
		part.CargoCap = 0
		link(part)
	}
	if e.Multiheaded {
		rear := newNode(domain.SubtypeMultiheaded)
		rear.CargoCap = 0
		link(rear)
	}
	return head
}

func (w *World) node(id domain.VehicleID) *domain.Vehicle {
	if id == domain.InvalidVehicle {
		return nil
	}
	return w.vehicles[id]
}

func (w *World) headOf(v *domain.Vehicle) *domain.Vehicle {
	for v.Prev != domain.InvalidVehicle {
		v = w.vehicles[v.Prev]
	}
	return v
}

// segmentEnd returns the last marker trailing v, or v itself.
func (w *World) segmentEnd(v *domain.Vehicle) *domain.Vehicle {
	for {
		next := w.node(v.Next)
		if next == nil || !next.Subtype.IsMarker() {
			return v
		}
		v = next
	}
}

// inSegment reports whether target belongs to the segment starting at v.
func (w *World) inSegment(v, target *domain.Vehicle) bool {
	end := w.segmentEnd(v)
	for n := v; n != nil; n = w.node(n.Next) {
		if n == target {
			return true
		}
		if n == end {
			return false
		}
	}
	return false
}

// detach unlinks the segment starting at v. A chain left without its head gets the
// next unit promoted.
func (w *World) detach(v *domain.Vehicle) {
	end := w.segmentEnd(v)
	prev, next := w.node(v.Prev), w.node(end.Next)
	if prev != nil {
		prev.Next = end.Next
	}
	if next != nil {
		next.Prev = v.Prev
		if prev == nil {
			w.promote(next)
		}
	}
	v.Prev = domain.InvalidVehicle
	end.Next = domain.InvalidVehicle
}

// attach links the detached segment starting at v behind the segment of after.
func (w *World) attach(v, after *domain.Vehicle) {
	afterEnd := w.segmentEnd(after)
	segEnd := w.segmentEnd(v)
	next := w.node(afterEnd.Next)
	afterEnd.Next = v.ID
	v.Prev = afterEnd.ID
	segEnd.Next = domain.InvalidVehicle
	if next != nil {
		segEnd.Next = next.ID
		next.Prev = segEnd.ID
	}
	v.Subtype &^= domain.SubtypeFront | domain.SubtypeFreeWagon
	for n := v; ; n = w.node(n.Next) {
		n.Tile, n.InDepot = after.Tile, after.InDepot
		if n == segEnd {
			break
		}
	}
}

// promote turns v into the head of its chain. An engine that never headed a train
// gets a fresh identity: no group, no orders, a new unit number. New heads are stopped.
func (w *World) promote(v *domain.Vehicle) {
	v.Stopped = true
	if v.Subtype.Has(domain.SubtypeWagon) {
		v.Subtype |= domain.SubtypeFreeWagon
		v.GroupID = domain.DefaultGroup
		return
	}
	v.Subtype |= domain.SubtypeFront
	if v.UnitNumber == 0 {
		v.GroupID = domain.DefaultGroup
		v.Orders = nil
		v.Name = ""
		v.UnitNumber = w.allocUnitNumber(v.Owner)
	}
}

func (w *World) remove(v *domain.Vehicle) {
	end := w.segmentEnd(v)
	w.detach(v)
	for n := v; n != nil; {
		next := w.node(n.Next)
		delete(w.vehicles, n.ID)
		if n == end {
			break
		}
		n = next
	}
}

// unitsFrom returns v and every real unit behind it.
func (w *World) unitsFrom(v *domain.Vehicle) []*domain.Vehicle {
	out := []*domain.Vehicle{v}
	for n := w.node(v.Next); n != nil; n = w.node(n.Next) {
		if !n.Subtype.IsMarker() {
			out = append(out, n)
		}
	}
	return out
}

// removeFrom deletes v and everything behind it.
func (w *World) removeFrom(v *domain.Vehicle) {
	if prev := w.node(v.Prev); prev != nil {
		prev.Next = domain.InvalidVehicle
	}
	for n := v; n != nil; {
		next := w.node(n.Next)
		delete(w.vehicles, n.ID)
		n = next
	}
}

func cloneVehicle(v *domain.Vehicle) domain.Vehicle {
	out := *v
	out.Orders = append([]string(nil), v.Orders...)
	return out
}

// Vehicle implements domain.TrainInspector.
func (w *World) Vehicle(id domain.VehicleID) (domain.Vehicle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.node(id)
	if v == nil {
		return domain.Vehicle{}, false
	}
	return cloneVehicle(v), true
}

// Chain implements domain.TrainInspector.
func (w *World) Chain(id domain.VehicleID) ([]domain.Vehicle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.node(id)
	if v == nil {
		return nil, domain.ErrNotFound{Entity: domain.EntityVehicle, ID: id.String()}
	}
	var out []domain.Vehicle
	for n := w.headOf(v); n != nil; n = w.node(n.Next) {
		out = append(out, cloneVehicle(n))
	}
	return out, nil
}

// DepotVehicles implements domain.TrainInspector.
func (w *World) DepotVehicles(tile domain.TileIndex) []domain.Vehicle {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Vehicle
	for _, v := range w.vehicles {
		if v.Tile == tile && v.InDepot {
			out = append(out, cloneVehicle(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Vehicles implements domain.TrainInspector.
func (w *World) Vehicles() []domain.Vehicle {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Vehicle, 0, len(w.vehicles))
	for _, v := range w.vehicles {
		out = append(out, cloneVehicle(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Engine implements domain.TrainInspector.
func (w *World) Engine(id domain.EngineID) (domain.Engine, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.engines[id]
	return e, ok
}

// Trains returns the head of every train, ordered by id.
func (w *World) Trains() []domain.Vehicle {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Vehicle
	for _, v := range w.vehicles {
		if v.Prev == domain.InvalidVehicle {
			out = append(out, cloneVehicle(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Crash marks every vehicle of the train containing id as crashed.
func (w *World) Crash(id domain.VehicleID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.node(id)
	if v == nil {
		return domain.ErrNotFound{Entity: domain.EntityVehicle, ID: id.String()}
	}
	for n := w.headOf(v); n != nil; n = w.node(n.Next) {
		n.Crashed = true
	}
	return nil
}
