package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrConflict is returned when an optimistic-lock update loses the race:
	// the row's version no longer matches the version the caller read.
	ErrConflict = errors.New("version conflict")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// Entity-specific "not found" errors

	// ErrFileNotFound indicates that the requested file does not exist in the store.
	ErrFileNotFound = fmt.Errorf("%w: file", ErrNotFound)

	// ErrDigestNotFound indicates that the requested digest does not exist in the store.
	ErrDigestNotFound = fmt.Errorf("%w: digest", ErrNotFound)

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if the error is an optimistic-lock conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
