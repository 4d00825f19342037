// Package domain defines the template replacement entities, value types,
// collaborator contracts and rule evaluation primitives used by tbtr.
package domain

import "strconv"

// TemplateID identifies a template unit. A chain is identified by the id of its head unit.
type TemplateID uint32

// VehicleID identifies a real vehicle in the game state.
type VehicleID uint32

// EngineID identifies an engine type of the catalogue.
type EngineID uint16

// GroupID identifies a group of trains.
type GroupID uint16

// CargoID identifies a cargo type.
type CargoID uint8

// RailType identifies a rail technology.
type RailType uint8

// TileIndex addresses a map tile, e.g. the tile of a depot.
type TileIndex uint32

// OwnerID identifies a company.
type OwnerID uint8

// Money is an amount in the game's base currency. Negative values are income.
type Money int64

const (
	// InvalidTemplate marks the absence of a template unit.
	InvalidTemplate TemplateID = 0
	// InvalidVehicle marks the absence of a vehicle.
	InvalidVehicle VehicleID = 0
	// InvalidEngine marks the absence of an engine.
	InvalidEngine EngineID = 0xFFFF
	// DefaultGroup is the implicit group of vehicles that are not grouped.
	DefaultGroup GroupID = 0
	// InvalidCargo marks the absence of a cargo type.
	InvalidCargo CargoID = 0xFF
)

// Rail types known to the engine catalogue.
const (
	RailTypeRail     RailType = 0
	RailTypeElectric RailType = 1
	RailTypeMonorail RailType = 2
	RailTypeMaglev   RailType = 3
	InvalidRailType  RailType = 0xFF
)

func (id TemplateID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id VehicleID) String() string  { return strconv.FormatUint(uint64(id), 10) }
func (id GroupID) String() string    { return strconv.FormatUint(uint64(id), 10) }
func (id EngineID) String() string   { return strconv.FormatUint(uint64(id), 10) }
