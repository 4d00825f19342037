// Package eligibility decides whether a real train differs from its template.
package eligibility

import (
	"fmt"

	"tbtr/pkg/domain"
)

// Trains enumerates vehicles and the chains they belong to.
type Trains interface {
	Vehicles() []domain.Vehicle
	Chain(id domain.VehicleID) ([]domain.Vehicle, error)
}

// Mismatch walks the real units of template and train in lockstep and returns the
// first position where engine, subtype, cargo type or cargo subtype differ. When one
// side runs out first the position is the length of the shorter side.
func Mismatch(template []domain.TemplateUnit, train []domain.Vehicle) (int, bool) {
	i, j, pos := 0, 0, 0
	for {
		i = nextTemplateUnit(template, i)
		j = nextVehicle(train, j)
		if i == len(template) || j == len(train) {
			if i == len(template) && j == len(train) {
				return 0, false
			}
			return pos, true
		}
		tv, v := template[i], train[j]
		if tv.EngineType != v.EngineType || tv.Subtype != v.Subtype ||
			tv.CargoType != v.CargoType || tv.CargoSubtype != v.CargoSubtype {
			return pos, true
		}
		i, j, pos = i+1, j+1, pos+1
	}
}

// NeedsReplacement reports whether train must be rebuilt to match template.
func NeedsReplacement(template []domain.TemplateUnit, train []domain.Vehicle) bool {
	_, differs := Mismatch(template, train)
	return differs
}

// CountTrainsToReplace counts the primary trains of group that differ from template.
// A group without template has nothing to replace.
func CountTrainsToReplace(trains Trains, group domain.GroupID, template []domain.TemplateUnit) (int, error) {
	if len(template) == 0 {
		return 0, nil
	}
	count := 0
	for _, v := range trains.Vehicles() {
		if !v.IsPrimary() || v.GroupID != group {
			continue
		}
		chain, err := trains.Chain(v.ID)
		if err != nil {
			return 0, fmt.Errorf("train %d: %w", v.ID, err)
		}
		if NeedsReplacement(template, chain) {
			count++
		}
	}
	return count, nil
}

func nextTemplateUnit(units []domain.TemplateUnit, i int) int {
	for i < len(units) && units[i].IsMarker() {
		i++
	}
	return i
}

func nextVehicle(vehicles []domain.Vehicle, j int) int {
	for j < len(vehicles) && vehicles[j].Subtype.IsMarker() {
		j++
	}
	return j
}
