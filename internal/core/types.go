package core

import "spacecore/pkg/domain"

type (
	Space              = domain.Space
	UpdateEvent        = domain.UpdateEvent
	ImageRef           = domain.ImageRef
	ArtistAssignment   = domain.ArtistAssignment
	Status             = domain.Status
	Action             = domain.Action
	Severity           = domain.Severity
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	StatusAvailable   = domain.StatusAvailable
	StatusDraft       = domain.StatusDraft
	StatusTaken       = domain.StatusTaken
	StatusPublished   = domain.StatusPublished
	StatusInstruction = domain.StatusInstruction
)

const (
	ActionCreate      = domain.ActionCreate
	ActionInstruction = domain.ActionInstruction
	ActionTaken       = domain.ActionTaken
	ActionUpdate      = domain.ActionUpdate
	ActionPublished   = domain.ActionPublished
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
