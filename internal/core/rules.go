package core

import (
	"context"
	"fmt"

	"spacecore/pkg/domain"
)

// DefaultRulesEngine returns an engine with the standard space rules
// registered.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(StatusConsistencyRule{})
	engine.Register(EventOrderRule{})
	engine.Register(DuplicateImageRule{})
	return engine
}

// StatusConsistencyRule blocks any commit that would leave a space's cached
// status out of sync with its event log.
type StatusConsistencyRule struct{}

func (StatusConsistencyRule) Name() string { return "status-consistency" }

func (StatusConsistencyRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		derived := domain.DeriveStatus(*change.After)
		if change.After.Status != derived {
			res.Violations = append(res.Violations, Violation{
				Rule:     "status-consistency",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("status %q does not match event log (expected %q)", change.After.Status, derived),
				SpaceID:  change.After.ID,
			})
		}
	}
	return res, nil
}

// EventOrderRule warns when a space's events are not in ascending creation
// order. Out-of-order logs are legal (backfilled history) but worth flagging.
type EventOrderRule struct{}

func (EventOrderRule) Name() string { return "event-order" }

func (EventOrderRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		for i := 1; i < len(change.After.Updates); i++ {
			if change.After.Updates[i].CreatedAt < change.After.Updates[i-1].CreatedAt {
				res.Violations = append(res.Violations, Violation{
					Rule:     "event-order",
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("event %d predates event %d", i, i-1),
					SpaceID:  change.After.ID,
				})
				break
			}
		}
	}
	return res, nil
}

// DuplicateImageRule warns when the same image src appears more than once in
// a space's top-level image list.
type DuplicateImageRule struct{}

func (DuplicateImageRule) Name() string { return "duplicate-image" }

func (DuplicateImageRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		seen := make(map[string]bool, len(change.After.Images))
		for _, img := range change.After.Images {
			if seen[img.Src] {
				res.Violations = append(res.Violations, Violation{
					Rule:     "duplicate-image",
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("image %s listed more than once", img.Src),
					SpaceID:  change.After.ID,
				})
				break
			}
			seen[img.Src] = true
		}
	}
	return res, nil
}
