// Package capacity caches the cargo capacity of engines per refit cargo for one game
// session.
package capacity

import (
	"sync"

	"tbtr/pkg/domain"
)

// VehicleSource enumerates the real vehicles of the session.
type VehicleSource interface {
	Vehicles() []domain.Vehicle
}

// EngineCatalogue resolves engine records.
type EngineCatalogue interface {
	Engine(id domain.EngineID) (domain.Engine, bool)
}

type key struct {
	engine domain.EngineID
	cargo  domain.CargoID
}

// Stats counts how lookups were resolved.
type Stats struct {
	Hits         int
	VehicleHits  int
	Probes       int
	Fallbacks    int
	CachedValues int
}

// Cache maps (engine, cargo) to a cargo capacity. Values come from existing vehicles,
// then from probing a throwaway vehicle; the engine default is returned uncached as a
// last resort. Clear must be called whenever the world is reset or reloaded.
type Cache struct {
	mu       sync.Mutex
	entries  map[key]uint16
	vehicles VehicleSource
	prober   domain.CapacityProber
	engines  EngineCatalogue
	stats    Stats
}

// New constructs a Cache. Any source may be nil.
func New(vehicles VehicleSource, prober domain.CapacityProber, engines EngineCatalogue) *Cache {
	return &Cache{
		entries:  make(map[key]uint16),
		vehicles: vehicles,
		prober:   prober,
		engines:  engines,
	}
}

// Capacity returns the capacity of engine when refitted to cargo.
func (c *Cache) Capacity(engine domain.EngineID, cargo domain.CargoID) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{engine: engine, cargo: cargo}
	if v, ok := c.entries[k]; ok {
		c.stats.Hits++
		return v
	}
	if c.vehicles != nil {
		for _, v := range c.vehicles.Vehicles() {
			if v.EngineType == engine && v.CargoType == cargo && !v.Subtype.IsMarker() {
				c.stats.VehicleHits++
				c.entries[k] = v.CargoCap
				return v.CargoCap
			}
		}
	}
	if c.prober != nil {
		if capacity, ok := c.prober.ProbeCapacity(engine, cargo); ok {
			c.stats.Probes++
			c.entries[k] = capacity
			return capacity
		}
	}
	c.stats.Fallbacks++
	if c.engines == nil {
		return 0
	}
	eng, ok := c.engines.Engine(engine)
	if !ok {
		return 0
	}
	return eng.Capacity
}

// Clear drops every cached capacity and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]uint16)
	c.stats = Stats{}
}

// Stats returns a copy of the lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.CachedValues = len(c.entries)
	return s
}
