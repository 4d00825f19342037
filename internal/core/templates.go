package core

import (
	"context"
	"fmt"

	"tbtr/internal/template"
	"tbtr/pkg/domain"
)

// AddEngine appends a unit of engine to the chain containing target, or starts a new
// chain for owner when target is InvalidTemplate.
func (s *Service) AddEngine(ctx context.Context, owner domain.OwnerID, target domain.TemplateID, engine domain.EngineID, insertAfter bool) (domain.TemplateUnit, error) {
	var created domain.TemplateUnit
	err := s.run(ctx, "add_engine", func(ctx context.Context) error {
		return s.transact(ctx, func(tx domain.Transaction) error {
			if target != domain.InvalidTemplate {
				chain, err := template.ChainOf(tx, target)
				if err != nil {
					return err
				}
				if err := checkOwner(owner, chain.Owner, "template "+chain.Head.String()); err != nil {
					return err
				}
			}
			u, err := s.editor.AppendUnit(tx, owner, target, engine, insertAfter)
			if err != nil {
				return err
			}
			created = u
			return nil
		})
	})
	return created, err
}

// DeleteEngine removes the last unit of the chain containing id, or the whole chain
// when wholeChain is set. It returns the head of the surviving chain.
func (s *Service) DeleteEngine(ctx context.Context, id domain.TemplateID, wholeChain bool) (domain.TemplateID, error) {
	head := domain.InvalidTemplate
	err := s.run(ctx, "delete_engine", func(ctx context.Context) error {
		return s.transact(ctx, func(tx domain.Transaction) error {
			if wholeChain {
				h, err := s.editor.DeleteUnit(tx, id, true)
				head = h
				return err
			}
			chainHead, err := template.HeadOf(tx, id)
			if err != nil {
				return err
			}
			h, err := s.editor.DeleteTail(tx, chainHead)
			head = h
			return err
		})
	})
	return head, err
}

// DeleteTemplate removes the chain keyed by head. Groups using it lose their template.
func (s *Service) DeleteTemplate(ctx context.Context, head domain.TemplateID) error {
	return s.run(ctx, "delete_template", func(ctx context.Context) error {
		return s.transact(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindChain(head); !ok {
				return domain.ErrNotFound{Entity: domain.EntityTemplateChain, ID: head.String()}
			}
			_, err := s.editor.DeleteUnit(tx, head, true)
			return err
		})
	})
}

// CloneTemplate creates a template mirroring the train containing vehicle.
func (s *Service) CloneTemplate(ctx context.Context, owner domain.OwnerID, vehicle domain.VehicleID) (domain.TemplateUnit, error) {
	var head domain.TemplateUnit
	err := s.run(ctx, "clone_template", func(ctx context.Context) error {
		train, err := s.world.Chain(vehicle)
		if err != nil {
			return err
		}
		if len(train) == 0 {
			return domain.ErrNotFound{Entity: domain.EntityVehicle, ID: vehicle.String()}
		}
		if err := checkOwner(owner, train[0].Owner, "train "+train[0].ID.String()); err != nil {
			return err
		}
		return s.transact(ctx, func(tx domain.Transaction) error {
			u, err := s.editor.CloneFromTrain(tx, train)
			if err != nil {
				return err
			}
			head = u
			return nil
		})
	})
	return head, err
}

// RefitTemplate refits one unit, or every capable unit of its chain, to cargo. It
// returns the number of refitted units.
func (s *Service) RefitTemplate(ctx context.Context, id domain.TemplateID, cargo domain.CargoID, singleUnit bool) (int, error) {
	var n int
	err := s.run(ctx, "refit_template", func(ctx context.Context) error {
		return s.transact(ctx, func(tx domain.Transaction) error {
			refitted, err := s.editor.Refit(tx, id, cargo, singleUnit)
			n = refitted
			return err
		})
	})
	return n, err
}

// StartReplacement assigns the chain keyed by head to group. Both must belong to owner.
func (s *Service) StartReplacement(ctx context.Context, owner domain.OwnerID, group domain.GroupID, head domain.TemplateID) (domain.GroupTemplate, error) {
	var assoc domain.GroupTemplate
	err := s.run(ctx, "start_replacement", func(ctx context.Context) error {
		g, ok := s.world.Group(group)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityGroup, ID: group.String()}
		}
		if err := checkOwner(owner, g.Owner, "group "+group.String()); err != nil {
			return err
		}
		return s.transact(ctx, func(tx domain.Transaction) error {
			chain, ok := tx.FindChain(head)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityTemplateChain, ID: head.String()}
			}
			if err := checkOwner(owner, chain.Owner, "template "+head.String()); err != nil {
				return err
			}
			if _, ok := tx.FindGroup(group); !ok {
				created, err := tx.PutGroup(domain.GroupTemplate{GroupID: group, Owner: owner, TemplateID: head})
				assoc = created
				return err
			}
			updated, err := tx.UpdateGroup(group, func(gt *domain.GroupTemplate) error {
				gt.TemplateID = head
				return nil
			})
			assoc = updated
			return err
		})
	})
	return assoc, err
}

// StopReplacement detaches the template from group. The group keeps its options.
func (s *Service) StopReplacement(ctx context.Context, group domain.GroupID) error {
	return s.run(ctx, "stop_replacement", func(ctx context.Context) error {
		return s.transact(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindGroup(group); !ok {
				return nil
			}
			_, err := tx.UpdateGroup(group, func(gt *domain.GroupTemplate) error {
				gt.TemplateID = domain.InvalidTemplate
				return nil
			})
			return err
		})
	})
}

// ToggleOption flips one replacement option of group and returns the new association.
func (s *Service) ToggleOption(ctx context.Context, group domain.GroupID, opt domain.ReplacementOption) (domain.GroupTemplate, error) {
	var assoc domain.GroupTemplate
	err := s.run(ctx, "toggle_option", func(ctx context.Context) error {
		g, ok := s.world.Group(group)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityGroup, ID: group.String()}
		}
		return s.transact(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindGroup(group); !ok {
				if _, err := tx.PutGroup(domain.GroupTemplate{GroupID: group, Owner: g.Owner}); err != nil {
					return err
				}
			}
			updated, err := tx.UpdateGroup(group, func(gt *domain.GroupTemplate) error {
				switch opt {
				case domain.OptionKeepRemainders:
					gt.KeepRemainders = !gt.KeepRemainders
				case domain.OptionRefitAsTemplate:
					gt.RefitAsTemplate = !gt.RefitAsTemplate
				case domain.OptionReuseDepotVehicles:
					gt.ReuseDepotVehicles = !gt.ReuseDepotVehicles
				default:
					return fmt.Errorf("unknown replacement option %d", opt)
				}
				return nil
			})
			assoc = updated
			return err
		})
	})
	return assoc, err
}

// GroupTemplate returns the association of group, if any.
func (s *Service) GroupTemplate(ctx context.Context, group domain.GroupID) (domain.GroupTemplate, bool, error) {
	var (
		assoc domain.GroupTemplate
		found bool
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		assoc, found = v.FindGroup(group)
		return nil
	})
	return assoc, found, err
}

// TemplateUnits returns every unit of the chain keyed by head, markers included.
func (s *Service) TemplateUnits(ctx context.Context, head domain.TemplateID) ([]domain.TemplateUnit, error) {
	var units []domain.TemplateUnit
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		units, err = template.Units(v, head)
		return err
	})
	return units, err
}

// TemplateCost sums the purchase cost of the template's real units.
func (s *Service) TemplateCost(ctx context.Context, head domain.TemplateID) (domain.Money, error) {
	var cost domain.Money
	err := s.run(ctx, "template_cost", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			var err error
			cost, err = template.Cost(v, s.world, head)
			return err
		})
	})
	return cost, err
}

// TemplateSummary describes one template for listings.
type TemplateSummary struct {
	Chain  domain.Chain
	Units  int
	Cost   domain.Money
	Groups int
}

// ListTemplates returns owner's templates matching railType, ordered by head id.
// InvalidRailType lists every template.
func (s *Service) ListTemplates(ctx context.Context, owner domain.OwnerID, railType domain.RailType) ([]TemplateSummary, error) {
	var out []TemplateSummary
	err := s.run(ctx, "list_templates", func(ctx context.Context) error {
		return s.store.View(ctx, func(v domain.TransactionView) error {
			for _, chain := range template.List(v, owner) {
				ok, err := template.ContainsRailType(v, chain.Head, railType)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				units, err := template.RealUnitsOf(v, chain.Head)
				if err != nil {
					return err
				}
				cost, err := template.Cost(v, s.world, chain.Head)
				if err != nil {
					return err
				}
				out = append(out, TemplateSummary{
					Chain:  chain,
					Units:  len(units),
					Cost:   cost,
					Groups: template.CountGroups(v, chain.Head),
				})
			}
			return nil
		})
	})
	return out, err
}

// TemplateWidth is the display width of the template in sprite pixels. It is zero
// when the world cannot size sprites.
func (s *Service) TemplateWidth(ctx context.Context, head domain.TemplateID) (int, error) {
	if s.display == nil {
		return 0, nil
	}
	var width int
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		width, err = s.display.ChainWidth(v, head)
		return err
	})
	return width, err
}
