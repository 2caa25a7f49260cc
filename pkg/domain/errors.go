package domain

import "fmt"

// NotFoundError is returned when a space id is absent from the store.
type NotFoundError struct {
	ID int
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("space %d not found", e.ID)
}

// EmptyLogError is returned by revert when a space has no events to undo.
type EmptyLogError struct {
	ID int
}

func (e EmptyLogError) Error() string {
	return fmt.Sprintf("space %d has no updates to revert", e.ID)
}

// ValidationError reports a malformed event or space, e.g. two primary
// images on one event. The store is left unmodified.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation failed: " + e.Reason
}
