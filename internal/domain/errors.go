package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed user input; the user is re-prompted.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateReference is returned when a payment reference was already submitted.
	ErrDuplicateReference = errors.New("payment reference already used")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the current balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotFound is returned when a request is absent or already terminal.
	ErrNotFound = errors.New("request not found or already processed")
	// ErrStoreUnavailable wraps persistence failures that prevent a durable write.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDeliveryFailure wraps notification send failures. Never shown to users.
	ErrDeliveryFailure = errors.New("notification delivery failed")
)

// ValidationError carries the user-facing reason for rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Code satisfies the handler summary error-code lookup.
func (e *ValidationError) Code() string {
	return "validation_" + e.Field
}

// Reason extracts the user-facing reason from err if it is a ValidationError.
func Reason(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
