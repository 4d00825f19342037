package template

import (
	"fmt"

	"tbtr/pkg/domain"
)

// CapacityLookup resolves the cargo capacity of an engine refitted to a cargo.
type CapacityLookup interface {
	Capacity(engine domain.EngineID, cargo domain.CargoID) uint16
}

// tileLength is the length of a full tile in vehicle length units; a standard
// vehicle is half a tile long.
const tileLength = 16

// Editor performs structural edits on template chains inside a store transaction.
type Editor struct {
	engines  EngineCatalogue
	capacity CapacityLookup
}

// NewEditor constructs an Editor.
func NewEditor(engines EngineCatalogue, capacity CapacityLookup) *Editor {
	return &Editor{engines: engines, capacity: capacity}
}

func (e *Editor) engine(id domain.EngineID) (domain.Engine, error) {
	eng, ok := e.engines.Engine(id)
	if !ok {
		return domain.Engine{}, domain.ErrNotFound{Entity: domain.EntityEngine, ID: id.String()}
	}
	return eng, nil
}

func (e *Editor) capacityFor(eng domain.Engine, cargo domain.CargoID) uint16 {
	if e.capacity == nil {
		return eng.Capacity
	}
	return e.capacity.Capacity(eng.ID, cargo)
}

// AppendUnit allocates a unit for engine. With target == InvalidTemplate a new chain
// owned by owner is started. Otherwise the unit is linked right after target when
// insertAfterTarget is set, or after the tail of target's chain.
func (e *Editor) AppendUnit(tx domain.Transaction, owner domain.OwnerID, target domain.TemplateID, engine domain.EngineID, insertAfterTarget bool) (domain.TemplateUnit, error) {
	eng, err := e.engine(engine)
	if err != nil {
		return domain.TemplateUnit{}, err
	}
	unit := domain.TemplateUnit{
		EngineType:        eng.ID,
		RailType:          eng.RailType,
		CargoType:         eng.DefaultCargo,
		CargoCap:          e.capacityFor(eng, eng.DefaultCargo),
		MaxSpeed:          eng.MaxSpeed,
		Power:             eng.Power,
		Weight:            eng.Weight,
		MaxTractiveEffort: eng.MaxTractiveEffort,
		Owner:             owner,
	}

	if target == domain.InvalidTemplate {
		unit.Subtype = domain.DetermineSubtype(eng.Wagon, true)
		created, err := tx.CreateUnit(unit)
		if err != nil {
			return domain.TemplateUnit{}, err
		}
		if err := tx.PutChain(domain.Chain{Head: created.ID, Tail: created.ID, Owner: owner}); err != nil {
			return domain.TemplateUnit{}, err
		}
		return created, nil
	}

	chain, err := ChainOf(tx, target)
	if err != nil {
		return domain.TemplateUnit{}, err
	}
	after := chain.Tail
	if insertAfterTarget {
		after = target
	}
	afterUnit, ok := tx.FindUnit(after)
	if !ok {
		return domain.TemplateUnit{}, inconsistent("chain %d tail %d missing", chain.Head, after)
	}
	unit.Owner = chain.Owner
	unit.Subtype = domain.DetermineSubtype(eng.Wagon, false)
	unit.Prev = after
	unit.Next = afterUnit.Next
	created, err := tx.CreateUnit(unit)
	if err != nil {
		return domain.TemplateUnit{}, err
	}
	if _, err := tx.UpdateUnit(after, func(u *domain.TemplateUnit) error {
		u.Next = created.ID
		return nil
	}); err != nil {
		return domain.TemplateUnit{}, err
	}
	if created.Next != domain.InvalidTemplate {
		if _, err := tx.UpdateUnit(created.Next, func(u *domain.TemplateUnit) error {
			u.Prev = created.ID
			return nil
		}); err != nil {
			return domain.TemplateUnit{}, err
		}
	}
	if after == chain.Tail {
		chain.Tail = created.ID
		if err := tx.PutChain(chain); err != nil {
			return domain.TemplateUnit{}, err
		}
	}
	return created, nil
}

// DeleteUnit removes id and its marker parts from its chain, or the whole chain when
// wholeChain is set.
// It returns the head of the surviving chain, InvalidTemplate when the chain is gone.
// Groups follow a moved head and lose their template when the chain disappears.
func (e *Editor) DeleteUnit(tx domain.Transaction, id domain.TemplateID, wholeChain bool) (domain.TemplateID, error) {
	unit, ok := tx.FindUnit(id)
	if !ok {
		return domain.InvalidTemplate, domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: id.String()}
	}
	chain, err := ChainOf(tx, id)
	if err != nil {
		return domain.InvalidTemplate, err
	}
	if wholeChain {
		return domain.InvalidTemplate, deleteChain(tx, chain)
	}

	seg, err := segment(tx, unit)
	if err != nil {
		return domain.InvalidTemplate, err
	}
	prev, next := unit.Prev, seg[len(seg)-1].Next
	isHead, isTail := unit.ID == chain.Head, seg[len(seg)-1].ID == chain.Tail
	if isHead != (prev == domain.InvalidTemplate) || isTail != (next == domain.InvalidTemplate) {
		return domain.InvalidTemplate, inconsistent("unit %d links prev=%d next=%d", unit.ID, prev, next)
	}
	if isHead && isTail {
		return domain.InvalidTemplate, deleteChain(tx, chain)
	}
	if isHead && unit.IsMarker() {
		return domain.InvalidTemplate, inconsistent("marker %d heads its chain", unit.ID)
	}

	if prev != domain.InvalidTemplate {
		if _, err := tx.UpdateUnit(prev, func(u *domain.TemplateUnit) error {
			u.Next = next
			return nil
		}); err != nil {
			return domain.InvalidTemplate, err
		}
	}
	if next != domain.InvalidTemplate {
		if _, err := tx.UpdateUnit(next, func(u *domain.TemplateUnit) error {
			u.Prev = prev
			if isHead {
				u.Subtype = promoteToHead(u.Subtype)
			}
			return nil
		}); err != nil {
			return domain.InvalidTemplate, err
		}
	}
	for _, u := range seg {
		if err := tx.DeleteUnit(u.ID); err != nil {
			return domain.InvalidTemplate, err
		}
	}

	switch {
	case isHead:
		if err := tx.DeleteChain(chain.Head); err != nil {
			return domain.InvalidTemplate, err
		}
		if err := tx.PutChain(domain.Chain{Head: next, Tail: chain.Tail, Owner: chain.Owner}); err != nil {
			return domain.InvalidTemplate, err
		}
		if err := repointGroups(tx, chain.Head, next); err != nil {
			return domain.InvalidTemplate, err
		}
		return next, nil
	case isTail:
		chain.Tail = prev
		if err := tx.PutChain(chain); err != nil {
			return domain.InvalidTemplate, err
		}
	}
	return chain.Head, nil
}

// segment returns unit followed, for a real unit, by the marker parts trailing it.
// Deleting a real unit takes its articulated parts and rear head along.
func segment(tx domain.Transaction, unit domain.TemplateUnit) ([]domain.TemplateUnit, error) {
	seg := []domain.TemplateUnit{unit}
	if unit.IsMarker() {
		return seg, nil
	}
	for id := unit.Next; id != domain.InvalidTemplate; {
		u, ok := tx.FindUnit(id)
		if !ok {
			return nil, inconsistent("unit %d links to missing unit %d", seg[len(seg)-1].ID, id)
		}
		if !u.IsMarker() {
			break
		}
		seg = append(seg, u)
		id = u.Next
	}
	return seg, nil
}

// DeleteTail removes the last unit of the chain keyed by head.
func (e *Editor) DeleteTail(tx domain.Transaction, head domain.TemplateID) (domain.TemplateID, error) {
	chain, ok := tx.FindChain(head)
	if !ok {
		return domain.InvalidTemplate, domain.ErrNotFound{Entity: domain.EntityTemplateChain, ID: head.String()}
	}
	return e.DeleteUnit(tx, chain.Tail, false)
}

// CloneFromTrain mirrors every node of train, markers included, into a new chain and
// returns its head. train is ordered head to tail.
func (e *Editor) CloneFromTrain(tx domain.Transaction, train []domain.Vehicle) (domain.TemplateUnit, error) {
	if len(train) == 0 {
		return domain.TemplateUnit{}, fmt.Errorf("clone empty train: %w", domain.ErrCommandFailed)
	}
	owner := train[0].Owner
	var (
		head, prev domain.TemplateUnit
		length     uint32
	)
	for i, v := range train {
		unit, err := tx.CreateUnit(domain.TemplateUnit{
			Prev:              prev.ID,
			EngineType:        v.EngineType,
			Subtype:           v.Subtype,
			RailType:          v.RailType,
			CargoType:         v.CargoType,
			CargoSubtype:      v.CargoSubtype,
			CargoCap:          v.CargoCap,
			MaxSpeed:          v.MaxSpeed,
			Power:             v.Power,
			Weight:            v.Weight,
			MaxTractiveEffort: v.MaxTractiveEffort,
			Owner:             owner,
		})
		if err != nil {
			return domain.TemplateUnit{}, err
		}
		if i == 0 {
			head = unit
		} else if _, err := tx.UpdateUnit(prev.ID, func(u *domain.TemplateUnit) error {
			u.Next = unit.ID
			return nil
		}); err != nil {
			return domain.TemplateUnit{}, err
		}
		length += uint32(v.Length)
		prev = unit
	}
	realLength := uint16((length*10 + tileLength - 1) / tileLength)
	head, err := tx.UpdateUnit(head.ID, func(u *domain.TemplateUnit) error {
		u.RealLength = realLength
		return nil
	})
	if err != nil {
		return domain.TemplateUnit{}, err
	}
	if err := tx.PutChain(domain.Chain{Head: head.ID, Tail: prev.ID, Owner: owner}); err != nil {
		return domain.TemplateUnit{}, err
	}
	return head, nil
}

// Refit sets the cargo of unit, or of every unit in its chain when singleUnit is false.
// Units whose engine cannot carry cargo are left untouched. It returns the number of
// refitted units.
func (e *Editor) Refit(tx domain.Transaction, id domain.TemplateID, cargo domain.CargoID, singleUnit bool) (int, error) {
	targets := []domain.TemplateID{id}
	if _, ok := tx.FindUnit(id); !ok {
		return 0, domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: id.String()}
	}
	if !singleUnit {
		chain, err := ChainOf(tx, id)
		if err != nil {
			return 0, err
		}
		units, err := Units(tx, chain.Head)
		if err != nil {
			return 0, err
		}
		targets = targets[:0]
		for _, u := range units {
			targets = append(targets, u.ID)
		}
	}
	refitted := 0
	for _, tid := range targets {
		u, _ := tx.FindUnit(tid)
		eng, err := e.engine(u.EngineType)
		if err != nil {
			return refitted, err
		}
		if !eng.CanCarry(cargo) {
			continue
		}
		capacity := e.capacityFor(eng, cargo)
		if _, err := tx.UpdateUnit(tid, func(u *domain.TemplateUnit) error {
			u.CargoType = cargo
			u.CargoCap = capacity
			return nil
		}); err != nil {
			return refitted, err
		}
		refitted++
	}
	return refitted, nil
}

func promoteToHead(s domain.Subtype) domain.Subtype {
	switch {
	case s.Has(domain.SubtypeEngine):
		return s | domain.SubtypeFront
	case s.Has(domain.SubtypeWagon):
		return s | domain.SubtypeFreeWagon
	default:
		return s
	}
}

func deleteChain(tx domain.Transaction, chain domain.Chain) error {
	units, err := Units(tx, chain.Head)
	if err != nil {
		return err
	}
	for _, u := range units {
		if err := tx.DeleteUnit(u.ID); err != nil {
			return err
		}
	}
	if err := tx.DeleteChain(chain.Head); err != nil {
		return err
	}
	return repointGroups(tx, chain.Head, domain.InvalidTemplate)
}

func repointGroups(tx domain.Transaction, from, to domain.TemplateID) error {
	for _, g := range tx.ListGroups() {
		if g.TemplateID != from {
			continue
		}
		if _, err := tx.UpdateGroup(g.GroupID, func(g *domain.GroupTemplate) error {
			g.TemplateID = to
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
