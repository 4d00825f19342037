// Package matcher picks the real vehicle that best substitutes a template unit.
package matcher

import "tbtr/pkg/domain"

// Preference breaks ties between candidates of equal refit quality.
type Preference uint8

const (
	// PreferMostCargo keeps as much cargo as possible; used inside the incoming train.
	PreferMostCargo Preference = iota
	// PreferLeastCargo leaves room for transferred cargo; used for idle depot vehicles.
	PreferLeastCargo
)

func (p Preference) String() string {
	if p == PreferLeastCargo {
		return "least_cargo"
	}
	return "most_cargo"
}

// FindBestMatch returns the candidate that best matches unit. Candidates must share the
// unit's engine type. With requireRefitMatch a candidate already carrying the unit's
// cargo beats one that does not. Remaining ties go by stored cargo per pref, and equal
// cargo keeps the earlier candidate.
func FindBestMatch(unit domain.TemplateUnit, candidates []domain.Vehicle, requireRefitMatch bool, pref Preference) (domain.Vehicle, bool) {
	var (
		found domain.Vehicle
		ok    bool
	)
	for _, c := range candidates {
		if c.EngineType != unit.EngineType {
			continue
		}
		if !ok {
			found, ok = c, true
			continue
		}
		if requireRefitMatch {
			cRefit, fRefit := c.CargoType == unit.CargoType, found.CargoType == unit.CargoType
			if cRefit != fRefit {
				if cRefit {
					found = c
				}
				continue
			}
		}
		if better(c, found, pref) {
			found = c
		}
	}
	return found, ok
}

func better(c, found domain.Vehicle, pref Preference) bool {
	if pref == PreferLeastCargo {
		return c.CargoCount < found.CargoCount
	}
	return c.CargoCount > found.CargoCount
}

// DepotCandidates filters vehicles down to the idle pool of the depot on tile: stopped
// primary vehicles and free wagons that belong to no group and are not in exclude.
func DepotCandidates(vehicles []domain.Vehicle, tile domain.TileIndex, exclude map[domain.VehicleID]struct{}) []domain.Vehicle {
	var out []domain.Vehicle
	for _, v := range vehicles {
		if v.Tile != tile || !v.InDepot || v.Subtype.IsMarker() {
			continue
		}
		if !v.IsStoppedInDepot() && !v.IsFreeWagon() {
			continue
		}
		if v.GroupID != domain.DefaultGroup {
			continue
		}
		if _, skip := exclude[v.ID]; skip {
			continue
		}
		out = append(out, v)
	}
	return out
}
