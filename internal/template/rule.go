package template

import (
	"context"
	"fmt"

	"tbtr/pkg/domain"
)

// LinkageRuleName is the name under which the linkage rule reports violations.
const LinkageRuleName = "template_chain_linkage"

// LinkageRule blocks any commit that leaves a template chain with broken linkage or a
// unit that no chain reaches.
type LinkageRule struct{}

// NewLinkageRule returns the chain linkage rule.
func NewLinkageRule() LinkageRule { return LinkageRule{} }

// Name implements domain.Rule.
func (LinkageRule) Name() string { return LinkageRuleName }

// Evaluate implements domain.Rule.
func (LinkageRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	touched := false
	for _, c := range changes {
		if c.Entity == domain.EntityTemplateUnit || c.Entity == domain.EntityTemplateChain {
			touched = true
			break
		}
	}
	if !touched {
		return domain.Result{}, nil
	}

	var res domain.Result
	reached := make(map[domain.TemplateID]struct{})
	for _, chain := range view.ListChains() {
		if err := Verify(view, chain.Head); err != nil {
			res.Violations = append(res.Violations, violation(domain.EntityTemplateChain, chain.Head, err.Error()))
			continue
		}
		units, _ := Units(view, chain.Head)
		for _, u := range units {
			reached[u.ID] = struct{}{}
		}
	}
	for _, u := range view.ListUnits() {
		if _, ok := reached[u.ID]; ok {
			continue
		}
		res.Violations = append(res.Violations, violation(domain.EntityTemplateUnit, u.ID, fmt.Sprintf("unit %d is not part of any chain", u.ID)))
	}
	return res, nil
}

func violation(entity domain.EntityType, id domain.TemplateID, msg string) domain.Violation {
	return domain.Violation{
		Rule:     LinkageRuleName,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id.String(),
	}
}
