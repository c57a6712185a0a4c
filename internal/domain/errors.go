package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a commit was rejected by the storage
	// layer's concurrency guard (no rows were affected). Callers may safely
	// retry the whole read-validate-commit sequence.
	ErrConflict = errors.New("concurrency conflict, no rows were affected")
)

// ValidationError signals that a business rule failed. It carries a
// human-readable reason and is never retried automatically.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) ValidationError {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// ExternalServiceError signals that a call to an external collaborator
// (identity directory, email dispatcher) failed.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

func (e ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsExternalServiceError reports whether err is (or wraps) an ExternalServiceError.
func IsExternalServiceError(err error) bool {
	var ee ExternalServiceError
	return errors.As(err, &ee)
}
