package template

import (
	"tbtr/pkg/domain"
)

// ChainLister enumerates chain records.
type ChainLister interface {
	ListChains() []domain.Chain
}

// Cost sums the purchase cost of every real unit of the chain keyed by head.
func Cost(r Reader, engines EngineCatalogue, head domain.TemplateID) (domain.Money, error) {
	units, err := RealUnitsOf(r, head)
	if err != nil {
		return 0, err
	}
	var total domain.Money
	for _, u := range units {
		eng, ok := engines.Engine(u.EngineType)
		if !ok {
			return 0, domain.ErrNotFound{Entity: domain.EntityEngine, ID: u.EngineType.String()}
		}
		total += eng.Cost
	}
	return total, nil
}

// ContainsRailType reports whether the chain fits a rail type filter. InvalidRailType
// disables filtering. Plain rail requires every real unit to be plain rail; any other
// rail type only requires one real unit of that type.
func ContainsRailType(r Reader, head domain.TemplateID, rt domain.RailType) (bool, error) {
	if rt == domain.InvalidRailType {
		return true, nil
	}
	units, err := RealUnitsOf(r, head)
	if err != nil {
		return false, err
	}
	if rt == domain.RailTypeRail {
		for _, u := range units {
			if u.RailType != rt {
				return false, nil
			}
		}
		return true, nil
	}
	for _, u := range units {
		if u.RailType == rt {
			return true, nil
		}
	}
	return false, nil
}

// CountGroups counts the groups of the chain's owner that use the chain keyed by head.
func CountGroups(r GroupReader, head domain.TemplateID) int {
	chain, ok := r.FindChain(head)
	if !ok {
		return 0
	}
	count := 0
	for _, g := range r.ListGroups() {
		if g.Owner == chain.Owner && g.TemplateID == head {
			count++
		}
	}
	return count
}

// List returns the chains of owner ordered by head id.
func List(r ChainLister, owner domain.OwnerID) []domain.Chain {
	var out []domain.Chain
	for _, c := range r.ListChains() {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	return out
}
