package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a record is absent or owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrActivityNotFound is returned when an activity cannot be located for the caller.
	ErrActivityNotFound = fmt.Errorf("activity %w", ErrNotFound)
	// ErrMissingIdentity is returned when an operation is invoked without a user id.
	ErrMissingIdentity = errors.New("missing user identity")
)

// ValidationError describes malformed input to a single request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
