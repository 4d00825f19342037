package core

import "tbtr/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityTemplateUnit  = domain.EntityTemplateUnit
	EntityTemplateChain = domain.EntityTemplateChain
	EntityGroupTemplate = domain.EntityGroupTemplate
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
