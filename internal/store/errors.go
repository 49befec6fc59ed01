package store

import "errors"

// Sentinel errors shared by both backends. Callers match them with
// errors.Is; backends wrap them with id and path context.
var (
	// ErrNotFound is returned for lookups of an id that has no record.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a status change violates the
	// forward-only lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStoreBusy is returned when the store lock cannot be acquired
	// within the bounded wait. Callers may retry with backoff.
	ErrStoreBusy = errors.New("store busy")

	// ErrDuplicateActivePath is returned when an insert would create a
	// second active record pointing at the same quarantine path.
	ErrDuplicateActivePath = errors.New("duplicate active quarantine path")
)
