// Package apperror defines the error taxonomy shared by all application
// services. Callers classify failures with errors.Is against the sentinel
// values; the wrapped message names the precondition that failed.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when required input is missing or malformed
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status transition is not
	// present in the status graph
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced requisition, step or rule
	// does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent mutation lost a
	// compare-and-swap race or an ordering precondition does not hold
	ErrConflict = errors.New("conflict")

	// ErrBusinessRule is returned when input is well-formed but violates a
	// business policy
	ErrBusinessRule = errors.New("business rule violation")
)

// NewValidation wraps ErrValidation with a formatted message.
func NewValidation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewInvalidTransition wraps ErrInvalidTransition naming both states.
func NewInvalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// NewNotFound wraps ErrNotFound naming the entity and its identifier.
func NewNotFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// NewConflict wraps ErrConflict with a formatted message.
func NewConflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NewBusinessRule wraps ErrBusinessRule with a formatted message.
func NewBusinessRule(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBusinessRule, fmt.Sprintf(format, args...))
}
