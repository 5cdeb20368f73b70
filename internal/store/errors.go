package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("already exists")
)

// ErrInvalidField is returned when a partial update names a field that is
// not part of the record schema.
var ErrInvalidField = errors.New("invalid field")
