package store

import (
	"errors"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested job does not exist in the
	// store.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicate is returned when appending a job whose ID is already
	// present in the collection.
	ErrDuplicate = errors.New("job already exists")

	// ErrCorruptDocument is returned when the persisted document itself
	// (not an individual record) cannot be decoded.
	ErrCorruptDocument = errors.New("corrupt queue document")
)

// IsNotFound checks if the error indicates a missing job.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
