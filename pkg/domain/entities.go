package domain

// EntityType identifies the type of record stored in the template store.
type EntityType string

// Entity types tracked by the persisted-state surface.
const (
	// EntityTemplateUnit is a single node of a template chain.
	EntityTemplateUnit EntityType = "template_unit"
	// EntityTemplateChain is the head/tail record of a template chain.
	EntityTemplateChain EntityType = "template_chain"
	// EntityGroupTemplate is a group's template association and replacement options.
	EntityGroupTemplate EntityType = "group_template"
	// EntityVehicle is a real vehicle owned by the game state.
	EntityVehicle EntityType = "vehicle"
	// EntityEngine is an engine catalogue record.
	EntityEngine EntityType = "engine"
	// EntityGroup is a group of trains.
	EntityGroup EntityType = "group"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Engine is an engine catalogue record. Rail vehicles are either locomotives or wagons.
type Engine struct {
	ID                EngineID           `json:"id" yaml:"id"`
	Name              string             `json:"name" yaml:"name"`
	RailType          RailType           `json:"rail_type" yaml:"rail_type"`
	Wagon             bool               `json:"wagon" yaml:"wagon"`
	Cost              Money              `json:"cost" yaml:"cost"`
	DefaultCargo      CargoID            `json:"default_cargo" yaml:"default_cargo"`
	Capacity          uint16             `json:"capacity" yaml:"capacity"`
	RefitCapacities   map[CargoID]uint16 `json:"refit_capacities,omitempty" yaml:"refit_capacities,omitempty"`
	MaxSpeed          uint32             `json:"max_speed" yaml:"max_speed"`
	Power             uint32             `json:"power" yaml:"power"`
	Weight            uint32             `json:"weight" yaml:"weight"`
	MaxTractiveEffort uint32             `json:"max_tractive_effort" yaml:"max_tractive_effort"`
	ArticulatedParts  int                `json:"articulated_parts,omitempty" yaml:"articulated_parts,omitempty"`
	Multiheaded       bool               `json:"multiheaded,omitempty" yaml:"multiheaded,omitempty"`
	Length            uint8              `json:"length,omitempty" yaml:"length,omitempty"`
}

// CanCarry reports whether the engine can be refitted to the cargo. The default cargo
// is always carried; any other cargo must appear in the refit capacities.
func (e Engine) CanCarry(cargo CargoID) bool {
	if cargo == InvalidCargo {
		return false
	}
	if cargo == e.DefaultCargo {
		return true
	}
	_, ok := e.RefitCapacities[cargo]
	return ok
}

// Vehicle is a read-only snapshot of one node of a real train.
type Vehicle struct {
	ID                VehicleID `json:"id"`
	EngineType        EngineID  `json:"engine_type"`
	Subtype           Subtype   `json:"subtype"`
	RailType          RailType  `json:"rail_type"`
	CargoType         CargoID   `json:"cargo_type"`
	CargoSubtype      uint8     `json:"cargo_subtype"`
	CargoCap          uint16    `json:"cargo_cap"`
	CargoCount        uint16    `json:"cargo_count"`
	Owner             OwnerID   `json:"owner"`
	GroupID           GroupID   `json:"group_id"`
	Tile              TileIndex `json:"tile"`
	InDepot           bool      `json:"in_depot"`
	Stopped           bool      `json:"stopped"`
	Crashed           bool      `json:"crashed"`
	Prev              VehicleID `json:"prev"`
	Next              VehicleID `json:"next"`
	MaxSpeed          uint32    `json:"max_speed"`
	Power             uint32    `json:"power"`
	Weight            uint32    `json:"weight"`
	MaxTractiveEffort uint32    `json:"max_tractive_effort"`
	Length            uint8     `json:"length"`
	Name              string    `json:"name,omitempty"`
	UnitNumber        uint16    `json:"unit_number,omitempty"`
	Orders            []string  `json:"orders,omitempty"`
	ServiceInterval   uint16    `json:"service_interval,omitempty"`
}

// IsPrimary reports whether the vehicle heads a train.
func (v Vehicle) IsPrimary() bool { return v.Subtype.Has(SubtypeFront) }

// IsFreeWagon reports whether the vehicle heads a chain of wagons without engine.
func (v Vehicle) IsFreeWagon() bool { return v.Subtype.Has(SubtypeFreeWagon) }

// IsStoppedInDepot reports whether the vehicle is a stopped primary vehicle inside a depot.
func (v Vehicle) IsStoppedInDepot() bool { return v.IsPrimary() && v.InDepot && v.Stopped }

// RealUnits filters the markers out of a head-to-tail list of train nodes.
func RealUnits(nodes []Vehicle) []Vehicle {
	out := make([]Vehicle, 0, len(nodes))
	for _, v := range nodes {
		if v.Subtype.IsMarker() {
			continue
		}
		out = append(out, v)
	}
	return out
}

// TemplateUnit is one node of a template chain. Units of a chain are linked through
// Prev and Next; the chain's head and tail are kept once in the Chain record.
type TemplateUnit struct {
	ID                TemplateID `json:"id"`
	Prev              TemplateID `json:"prev"`
	Next              TemplateID `json:"next"`
	EngineType        EngineID   `json:"engine_type"`
	Subtype           Subtype    `json:"subtype"`
	RailType          RailType   `json:"rail_type"`
	CargoType         CargoID    `json:"cargo_type"`
	CargoSubtype      uint8      `json:"cargo_subtype"`
	CargoCap          uint16     `json:"cargo_cap"`
	MaxSpeed          uint32     `json:"max_speed"`
	Power             uint32     `json:"power"`
	Weight            uint32     `json:"weight"`
	MaxTractiveEffort uint32     `json:"max_tractive_effort"`
	Owner             OwnerID    `json:"owner"`
	// RealLength is the chain length in tenths of a tile; only set on cloned heads.
	RealLength uint16 `json:"real_length,omitempty"`
}

// IsMarker reports whether the unit is an articulated part or rear head.
func (u TemplateUnit) IsMarker() bool { return u.Subtype.IsMarker() }

// Chain records the head and tail of a template chain, keyed by Head.
type Chain struct {
	Head  TemplateID `json:"head"`
	Tail  TemplateID `json:"tail"`
	Owner OwnerID    `json:"owner"`
}

// GroupTemplate associates a group of trains with a template chain and the group's
// replacement options.
type GroupTemplate struct {
	GroupID            GroupID    `json:"group_id"`
	Owner              OwnerID    `json:"owner"`
	TemplateID         TemplateID `json:"template_id"`
	ReuseDepotVehicles bool       `json:"reuse_depot_vehicles"`
	KeepRemainders     bool       `json:"keep_remainders"`
	RefitAsTemplate    bool       `json:"refit_as_template"`
}

// HasTemplate reports whether the group currently references a template.
func (g GroupTemplate) HasTemplate() bool { return g.TemplateID != InvalidTemplate }

// Group is a named group of trains of one company.
type Group struct {
	ID    GroupID `json:"id" yaml:"id"`
	Owner OwnerID `json:"owner" yaml:"owner"`
	Name  string  `json:"name" yaml:"name"`
}

// ReplacementOption names one of the toggleable group options.
type ReplacementOption uint8

// Replacement options.
const (
	OptionKeepRemainders ReplacementOption = iota
	OptionRefitAsTemplate
	OptionReuseDepotVehicles
)

func (o ReplacementOption) String() string {
	switch o {
	case OptionKeepRemainders:
		return "keep_remainders"
	case OptionRefitAsTemplate:
		return "refit_as_template"
	case OptionReuseDepotVehicles:
		return "reuse_depot_vehicles"
	default:
		return "unknown"
	}
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + e.Result.Violations[0].Message
}
