package core

import (
	"context"
	"fmt"

	"tbtr/internal/eligibility"
	"tbtr/internal/replace"
	"tbtr/internal/template"
	"tbtr/pkg/domain"
)

// ReplaceTrain rebuilds the train headed by train after its group's template. The
// replacement is priced first; an attempt the company cannot afford never touches
// the train.
func (s *Service) ReplaceTrain(ctx context.Context, owner domain.OwnerID, train domain.VehicleID, stayInDepot bool) (replace.Outcome, error) {
	var out replace.Outcome
	err := s.run(ctx, "replace_train", func(ctx context.Context) error {
		req, err := s.request(ctx, owner, train, stayInDepot)
		if err != nil {
			return err
		}
		if err := s.affordable(ctx, owner, req); err != nil {
			return err
		}
		req.Mode = domain.ModeExecute
		out, err = s.executor.Replace(ctx, req)
		return err
	})
	return out, err
}

// EstimateReplacement prices the replacement of train without changing anything.
func (s *Service) EstimateReplacement(ctx context.Context, owner domain.OwnerID, train domain.VehicleID) (domain.Money, error) {
	var cost domain.Money
	err := s.run(ctx, "estimate_replacement", func(ctx context.Context) error {
		req, err := s.request(ctx, owner, train, false)
		if err != nil {
			return err
		}
		cost, err = s.executor.Estimate(ctx, req)
		return err
	})
	return cost, err
}

// HandleDepotArrival replaces train when it entered a depot and differs from its
// group's template. replaced is false when nothing had to be done.
func (s *Service) HandleDepotArrival(ctx context.Context, train domain.VehicleID, stayInDepot bool) (replace.Outcome, bool, error) {
	var (
		out      replace.Outcome
		replaced bool
	)
	err := s.run(ctx, "depot_arrival", func(ctx context.Context) error {
		head, err := s.head(train)
		if err != nil {
			return err
		}
		if !head.IsPrimary() || !head.InDepot || head.Crashed || head.GroupID == domain.DefaultGroup {
			return nil
		}
		assoc, units, err := s.groupTemplate(ctx, head.GroupID)
		if err != nil || !assoc.HasTemplate() {
			return err
		}
		nodes, err := s.world.Chain(head.ID)
		if err != nil {
			return err
		}
		if !eligibility.NeedsReplacement(units, nodes) {
			return nil
		}
		req := replace.Request{
			Train:    head.ID,
			Template: units,
			Options:  replace.OptionsFor(assoc, stayInDepot),
		}
		if err := s.affordable(ctx, head.Owner, req); err != nil {
			return err
		}
		req.Mode = domain.ModeExecute
		out, err = s.executor.Replace(ctx, req)
		if err != nil {
			return err
		}
		replaced = true
		s.logger.Info("train replaced on depot arrival", "train", head.ID, "new_head", out.NewHead,
			"group", head.GroupID, "cost", out.Cost)
		return nil
	})
	return out, replaced, err
}

// CountTrainsToReplace counts the trains of group that differ from the group's template.
func (s *Service) CountTrainsToReplace(ctx context.Context, group domain.GroupID) (int, error) {
	var n int
	err := s.run(ctx, "count_trains_to_replace", func(ctx context.Context) error {
		assoc, units, err := s.groupTemplate(ctx, group)
		if err != nil || !assoc.HasTemplate() {
			return err
		}
		n, err = eligibility.CountTrainsToReplace(s.world, group, units)
		return err
	})
	return n, err
}

// Treasury reports the funds of a company. When the world implements it, replacements
// whose estimate exceeds the funds are refused before anything is bought.
type Treasury interface {
	Money(owner domain.OwnerID) domain.Money
}

func (s *Service) affordable(ctx context.Context, owner domain.OwnerID, req replace.Request) error {
	cost, err := s.executor.Estimate(ctx, req)
	if err != nil {
		return err
	}
	treasury, ok := s.world.(Treasury)
	if !ok || cost <= 0 {
		return nil
	}
	if funds := treasury.Money(owner); funds < cost {
		return fmt.Errorf("replacement of train %d costs %d, company %d has %d: %w",
			req.Train, cost, owner, funds, domain.ErrInsufficientFunds)
	}
	return nil
}

func (s *Service) request(ctx context.Context, owner domain.OwnerID, train domain.VehicleID, stayInDepot bool) (replace.Request, error) {
	head, err := s.head(train)
	if err != nil {
		return replace.Request{}, err
	}
	if head.Crashed {
		return replace.Request{}, fmt.Errorf("train %d crashed: %w", head.ID, domain.ErrCommandFailed)
	}
	if err := checkOwner(owner, head.Owner, "train "+head.ID.String()); err != nil {
		return replace.Request{}, err
	}
	assoc, units, err := s.groupTemplate(ctx, head.GroupID)
	if err != nil {
		return replace.Request{}, err
	}
	if !assoc.HasTemplate() {
		return replace.Request{}, fmt.Errorf("group %d: %w", head.GroupID, domain.ErrNoTemplate)
	}
	return replace.Request{
		Train:    head.ID,
		Template: units,
		Options:  replace.OptionsFor(assoc, stayInDepot),
		Mode:     domain.ModeDryRun,
	}, nil
}

// groupTemplate loads the association of group and, when it has a template, the
// template units head to tail.
func (s *Service) groupTemplate(ctx context.Context, group domain.GroupID) (domain.GroupTemplate, []domain.TemplateUnit, error) {
	var (
		assoc domain.GroupTemplate
		units []domain.TemplateUnit
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		found, ok := v.FindGroup(group)
		if !ok || !found.HasTemplate() {
			return nil
		}
		var err error
		units, err = template.Units(v, found.TemplateID)
		if err != nil {
			return fmt.Errorf("template of group %d: %w", group, err)
		}
		assoc = found
		return nil
	})
	return assoc, units, err
}
