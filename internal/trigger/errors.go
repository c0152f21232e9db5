package trigger

import "errors"

var (
	// ErrInvalidTrigger is returned when a trigger definition is malformed.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrDuplicateTrigger is returned when a semantically identical trigger
	// already exists for the organization.
	ErrDuplicateTrigger = errors.New("duplicate trigger")
	// ErrTriggerNotFound is returned when a trigger lookup fails.
	ErrTriggerNotFound = errors.New("trigger not found")
	// ErrPreconditionFailed is returned when an optimistic concurrency check
	// fails during update.
	ErrPreconditionFailed = errors.New("precondition failed")
)
