package domain

import "context"

// CommandMode selects whether an operation mutates the game state or only prices it.
type CommandMode uint8

// Command modes.
const (
	ModeExecute CommandMode = iota
	ModeDryRun
)

func (m CommandMode) String() string {
	if m == ModeDryRun {
		return "dry_run"
	}
	return "execute"
}

// MoveRequest detaches a real unit (with its markers) from wherever it sits and
// attaches it after After. After == InvalidVehicle starts a new chain.
// Engine describes the vehicle when it only exists in a dry-run plan.
type MoveRequest struct {
	Vehicle VehicleID
	After   VehicleID
	Engine  EngineID
}

// BuildRequest buys a new vehicle of Engine in the depot on Tile for Owner.
type BuildRequest struct {
	Tile   TileIndex
	Engine EngineID
	Owner  OwnerID
}

// SellRequest sells a real unit together with its markers. Chain sells the unit and
// every unit behind it in a single command: either all of them go or none does.
type SellRequest struct {
	Vehicle VehicleID
	Engine  EngineID
	Chain   bool
}

// RefitRequest refits a real unit to Cargo. Engine describes the vehicle when it only
// exists in a dry-run plan.
type RefitRequest struct {
	Vehicle VehicleID
	Engine  EngineID
	Cargo   CargoID
}

// VehicleOperations are the state-changing vehicle commands. Each returns the cost of
// the operation; in ModeDryRun the same cost is returned without mutating anything.
type VehicleOperations interface {
	MoveVehicle(ctx context.Context, req MoveRequest, mode CommandMode) (Money, error)
	BuildVehicle(ctx context.Context, req BuildRequest, mode CommandMode) (VehicleID, Money, error)
	SellVehicle(ctx context.Context, req SellRequest, mode CommandMode) (Money, error)
	RefitVehicle(ctx context.Context, req RefitRequest, mode CommandMode) (Money, error)
}

// TrainOperations are the head-level train commands used after a replacement.
type TrainOperations interface {
	// CopyHeadSpecificThings transfers name, orders, group, unit number and service
	// interval from one primary vehicle to another.
	CopyHeadSpecificThings(ctx context.Context, from, to VehicleID, mode CommandMode) (Money, error)
	// NeutralizeStatus removes a primary vehicle from its group, deletes its orders,
	// resets its statistics and stops it.
	NeutralizeStatus(ctx context.Context, id VehicleID, mode CommandMode) (Money, error)
	// SetStopped starts or stops a primary vehicle.
	SetStopped(ctx context.Context, id VehicleID, stopped bool) error
	// ShiftCargo moves amount units of cargo between two vehicles carrying the same cargo.
	ShiftCargo(ctx context.Context, from, to VehicleID, amount uint16) error
	// RestoreVehicleState puts back the cargo and head-specific settings captured in
	// state. It undoes refits and cargo moves of a failed replacement free of charge.
	RestoreVehicleState(ctx context.Context, state VehicleState) error
}

// VehicleState is the part of a vehicle a failed replacement has to put back.
type VehicleState struct {
	Vehicle         VehicleID
	CargoType       CargoID
	CargoCount      uint16
	Name            string
	UnitNumber      uint16
	Orders          []string
	GroupID         GroupID
	ServiceInterval uint16
}

// StateOf captures the restorable state of v.
func StateOf(v Vehicle) VehicleState {
	return VehicleState{
		Vehicle:         v.ID,
		CargoType:       v.CargoType,
		CargoCount:      v.CargoCount,
		Name:            v.Name,
		UnitNumber:      v.UnitNumber,
		Orders:          append([]string(nil), v.Orders...),
		GroupID:         v.GroupID,
		ServiceInterval: v.ServiceInterval,
	}
}

// TrainInspector gives read access to vehicles and engines.
type TrainInspector interface {
	Vehicle(id VehicleID) (Vehicle, bool)
	// Chain returns every node of the chain containing id, head to tail, markers included.
	Chain(id VehicleID) ([]Vehicle, error)
	// DepotVehicles returns every vehicle node inside the depot on tile.
	DepotVehicles(tile TileIndex) []Vehicle
	// Vehicles returns every vehicle node.
	Vehicles() []Vehicle
	Engine(id EngineID) (Engine, bool)
}

// CapacityProber determines the capacity an engine would have when refitted to cargo by
// refitting a throwaway vehicle. ok is false when the engine cannot carry the cargo.
type CapacityProber interface {
	ProbeCapacity(engine EngineID, cargo CargoID) (capacity uint16, ok bool)
}

// GroupDirectory looks up the groups of the game state.
type GroupDirectory interface {
	Group(id GroupID) (Group, bool)
	Groups(owner OwnerID) []Group
}

// GameState is the full collaborator surface the replacement executor needs.
type GameState interface {
	VehicleOperations
	TrainOperations
	TrainInspector
}
