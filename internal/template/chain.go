// Package template implements the template chain arena: structural edits that keep
// head/tail linkage consistent, chain queries, and the linkage store rule.
package template

import (
	"fmt"

	"tbtr/pkg/domain"
)

// Reader is the read surface shared by domain.Transaction and domain.TransactionView.
type Reader interface {
	FindUnit(id domain.TemplateID) (domain.TemplateUnit, bool)
	FindChain(head domain.TemplateID) (domain.Chain, bool)
}

// GroupReader adds group enumeration to Reader.
type GroupReader interface {
	Reader
	ListGroups() []domain.GroupTemplate
}

// EngineCatalogue resolves engine records.
type EngineCatalogue interface {
	Engine(id domain.EngineID) (domain.Engine, bool)
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInconsistentChain)
}

// HeadOf walks Prev links from id to the head of its chain.
func HeadOf(r Reader, id domain.TemplateID) (domain.TemplateID, error) {
	u, ok := r.FindUnit(id)
	if !ok {
		return domain.InvalidTemplate, domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: id.String()}
	}
	seen := map[domain.TemplateID]struct{}{u.ID: {}}
	for u.Prev != domain.InvalidTemplate {
		prev, ok := r.FindUnit(u.Prev)
		if !ok {
			return domain.InvalidTemplate, inconsistent("unit %d links to missing prev %d", u.ID, u.Prev)
		}
		if _, dup := seen[prev.ID]; dup {
			return domain.InvalidTemplate, inconsistent("cycle at unit %d", prev.ID)
		}
		seen[prev.ID] = struct{}{}
		u = prev
	}
	return u.ID, nil
}

// ChainOf resolves the chain record of the chain containing id.
func ChainOf(r Reader, id domain.TemplateID) (domain.Chain, error) {
	head, err := HeadOf(r, id)
	if err != nil {
		return domain.Chain{}, err
	}
	chain, ok := r.FindChain(head)
	if !ok {
		return domain.Chain{}, inconsistent("unit %d has no chain record", head)
	}
	return chain, nil
}

// Units returns every unit of the chain keyed by head, head to tail, markers included.
func Units(r Reader, head domain.TemplateID) ([]domain.TemplateUnit, error) {
	chain, ok := r.FindChain(head)
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityTemplateChain, ID: head.String()}
	}
	var out []domain.TemplateUnit
	seen := make(map[domain.TemplateID]struct{})
	prev := domain.InvalidTemplate
	for id := chain.Head; id != domain.InvalidTemplate; {
		u, ok := r.FindUnit(id)
		if !ok {
			return nil, inconsistent("chain %d links to missing unit %d", head, id)
		}
		if _, dup := seen[id]; dup {
			return nil, inconsistent("cycle in chain %d at unit %d", head, id)
		}
		if u.Prev != prev {
			return nil, inconsistent("unit %d prev is %d, expected %d", id, u.Prev, prev)
		}
		seen[id] = struct{}{}
		out = append(out, u)
		prev = id
		id = u.Next
	}
	if prev != chain.Tail {
		return nil, inconsistent("chain %d ends at %d but tail is %d", head, prev, chain.Tail)
	}
	return out, nil
}

// RealUnits filters articulated parts and rear heads out of a chain listing.
func RealUnits(units []domain.TemplateUnit) []domain.TemplateUnit {
	out := make([]domain.TemplateUnit, 0, len(units))
	for _, u := range units {
		if u.IsMarker() {
			continue
		}
		out = append(out, u)
	}
	return out
}

// RealUnitsOf loads the chain keyed by head and returns its real units.
func RealUnitsOf(r Reader, head domain.TemplateID) ([]domain.TemplateUnit, error) {
	units, err := Units(r, head)
	if err != nil {
		return nil, err
	}
	return RealUnits(units), nil
}

// Verify checks the linkage of the chain keyed by head: the head has no prev, every
// next/prev pair agrees, the walk is acyclic and ends at the recorded tail.
func Verify(r Reader, head domain.TemplateID) error {
	chain, ok := r.FindChain(head)
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTemplateChain, ID: head.String()}
	}
	if chain.Head != head {
		return inconsistent("chain keyed by %d records head %d", head, chain.Head)
	}
	units, err := Units(r, head)
	if err != nil {
		return err
	}
	for _, u := range units {
		if u.Owner != chain.Owner {
			return inconsistent("unit %d owned by %d in chain of %d", u.ID, u.Owner, chain.Owner)
		}
	}
	return nil
}
