package core

import (
	"tbtr/internal/template"
	"tbtr/pkg/domain"
)

type (
	// Rule defines an evaluation executed within a transaction boundary.
	Rule = domain.Rule
	// RulesEngine orchestrates rule evaluation.
	RulesEngine = domain.RulesEngine
)

// NewRulesEngine constructs an engine without rules.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set: every
// committed transaction must leave template chain linkage intact.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(template.NewLinkageRule())
	return engine
}
