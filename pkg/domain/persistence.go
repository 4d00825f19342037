package domain

import "context"

// Transaction exposes the template store operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateUnit(TemplateUnit) (TemplateUnit, error)
	UpdateUnit(id TemplateID, mutator func(*TemplateUnit) error) (TemplateUnit, error)
	DeleteUnit(id TemplateID) error
	FindUnit(id TemplateID) (TemplateUnit, bool)
	PutChain(Chain) error
	DeleteChain(head TemplateID) error
	FindChain(head TemplateID) (Chain, bool)
	PutGroup(GroupTemplate) (GroupTemplate, error)
	UpdateGroup(id GroupID, mutator func(*GroupTemplate) error) (GroupTemplate, error)
	FindGroup(id GroupID) (GroupTemplate, bool)
	ListGroups() []GroupTemplate
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	FindUnit(id TemplateID) (TemplateUnit, bool)
	FindChain(head TemplateID) (Chain, bool)
	ListUnits() []TemplateUnit
	ListChains() []Chain
	FindGroup(id GroupID) (GroupTemplate, bool)
	ListGroups() []GroupTemplate
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
