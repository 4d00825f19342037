// Package world is an in-memory game state: engines, trains as linked vehicle chains,
// depots, groups and company money. It implements the collaborator contracts the
// replacement core consumes and is used by the simulator and tests.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"tbtr/internal/template"
	"tbtr/pkg/domain"
)

var (
	_ domain.GameState      = (*World)(nil)
	_ domain.GroupDirectory = (*World)(nil)
	_ domain.CapacityProber = (*World)(nil)
	_ template.SpriteSizer  = (*World)(nil)
)

var (
	// ErrNoDepot is returned when a vehicle is built on a tile without a depot.
	ErrNoDepot = errors.New("no depot on tile")
	// ErrNotInDepot is returned when a vehicle outside a depot is moved or sold.
	ErrNotInDepot = errors.New("vehicle not in depot")
	// ErrNotPrimary is returned when a head-level operation targets a non-head vehicle.
	ErrNotPrimary = errors.New("vehicle is not a primary vehicle")
	// ErrCannotRefit is returned when an engine cannot carry the requested cargo.
	ErrCannotRefit = errors.New("engine cannot carry cargo")
)

// defaultVehicleLength is the length of a standard vehicle, half a tile.
const defaultVehicleLength = 8

// World holds the game state. All methods are safe for concurrent use.
type World struct {
	mu       sync.Mutex
	engines  map[domain.EngineID]domain.Engine
	vehicles map[domain.VehicleID]*domain.Vehicle
	groups   map[domain.GroupID]domain.Group
	depots   map[domain.TileIndex]struct{}
	money    map[domain.OwnerID]domain.Money
	nextID   domain.VehicleID
	nextUnit map[domain.OwnerID]uint16
	fault    *fault
	zoom     int
}

// New constructs an empty world.
func New() *World {
	w := &World{}
	w.reset()
	return w
}

func (w *World) reset() {
	w.engines = make(map[domain.EngineID]domain.Engine)
	w.vehicles = make(map[domain.VehicleID]*domain.Vehicle)
	w.groups = make(map[domain.GroupID]domain.Group)
	w.depots = make(map[domain.TileIndex]struct{})
	w.money = make(map[domain.OwnerID]domain.Money)
	w.nextUnit = make(map[domain.OwnerID]uint16)
	w.nextID = 1
	w.fault = nil
	w.zoom = 1
}

// Reset drops every engine, vehicle, group, depot and balance.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// AddEngine registers an engine in the catalogue.
func (w *World) AddEngine(e domain.Engine) error {
	if e.ID == domain.InvalidEngine {
		return fmt.Errorf("engine id %d is reserved", e.ID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.engines[e.ID] = e
	return nil
}

// Engines returns the catalogue ordered by id.
func (w *World) Engines() []domain.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Engine, 0, len(w.engines))
	for _, e := range w.engines {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddDepot marks tile as a depot.
func (w *World) AddDepot(tile domain.TileIndex) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.depots[tile] = struct{}{}
}

// AddGroup registers a group.
func (w *World) AddGroup(g domain.Group) error {
	if g.ID == domain.DefaultGroup {
		return fmt.Errorf("group id %d is reserved", g.ID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.groups[g.ID] = g
	return nil
}

// Group implements domain.GroupDirectory.
func (w *World) Group(id domain.GroupID) (domain.Group, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.groups[id]
	return g, ok
}

// Groups implements domain.GroupDirectory.
func (w *World) Groups(owner domain.OwnerID) []domain.Group {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Group
	for _, g := range w.groups {
		if g.Owner == owner {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetMoney sets the bank balance of owner.
func (w *World) SetMoney(owner domain.OwnerID, amount domain.Money) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.money[owner] = amount
}

// Money returns the bank balance of owner.
func (w *World) Money(owner domain.OwnerID) domain.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.money[owner]
}

// SetZoom changes the sprite scale used by SpriteSize.
func (w *World) SetZoom(scale int) {
	if scale < 1 {
		scale = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.zoom = scale
}

// SpriteSize implements template.SpriteSizer.
func (w *World) SpriteSize(engine domain.EngineID) template.Geometry {
	w.mu.Lock()
	defer w.mu.Unlock()
	length := defaultVehicleLength
	if e, ok := w.engines[engine]; ok && e.Length > 0 {
		length = int(e.Length)
	}
	return template.Geometry{
		Width:   length * 4 * w.zoom,
		Height:  12 * w.zoom,
		XOffset: -length * 2 * w.zoom,
		YOffset: -6 * w.zoom,
	}
}

// ProbeCapacity implements domain.CapacityProber by refitting a throwaway vehicle
// that is never registered in the world.
func (w *World) ProbeCapacity(engine domain.EngineID, cargo domain.CargoID) (uint16, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.engines[engine]
	if !ok || !e.CanCarry(cargo) {
		return 0, false
	}
	probe := domain.Vehicle{EngineType: e.ID, CargoType: e.DefaultCargo, CargoCap: e.Capacity}
	fitCargo(&probe, e, cargo)
	return probe.CargoCap, true
}

// fitCargo refits v to cargo, emptying it.
func fitCargo(v *domain.Vehicle, e domain.Engine, cargo domain.CargoID) {
	v.CargoType = cargo
	v.CargoCap = capacityOf(e, cargo)
	v.CargoCount = 0
}

func capacityOf(e domain.Engine, cargo domain.CargoID) uint16 {
	if c, ok := e.RefitCapacities[cargo]; ok {
		return c
	}
	return e.Capacity
}

func (w *World) allocUnitNumber(owner domain.OwnerID) uint16 {
	w.nextUnit[owner]++
	return w.nextUnit[owner]
}
