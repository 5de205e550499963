package entity

import "errors"

// Sentinel domain errors. Callers classify with errors.Is; the HTTP layer
// maps them onto status codes.
var (
	// ErrValidation marks input that fails domain validation rules.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for an entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a write that violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)
