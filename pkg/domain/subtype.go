package domain

// Subtype is the bit set describing the role of a node inside a vehicle or template chain.
type Subtype uint8

// Subtype flags.
const (
	SubtypeFront Subtype = 1 << iota
	SubtypeArticulatedPart
	SubtypeWagon
	SubtypeEngine
	SubtypeFreeWagon
	SubtypeMultiheaded
)

// Has reports whether all bits of flag are set.
func (s Subtype) Has(flag Subtype) bool { return s&flag == flag }

// IsMarker reports whether the node is an articulated part or the rear head of a
// multi-headed engine. Markers belong to the preceding real unit.
func (s Subtype) IsMarker() bool {
	if s.Has(SubtypeArticulatedPart) {
		return true
	}
	return s.Has(SubtypeMultiheaded) && !s.Has(SubtypeEngine)
}

// DetermineSubtype returns the subtype of a freshly added template unit. Heads of
// chains are marked as front engines or free wagons.
func DetermineSubtype(isWagon, isHead bool) Subtype {
	if isWagon {
		if isHead {
			return SubtypeWagon | SubtypeFreeWagon
		}
		return SubtypeWagon
	}
	if isHead {
		return SubtypeEngine | SubtypeFront
	}
	return SubtypeEngine
}
