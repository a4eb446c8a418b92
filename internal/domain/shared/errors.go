// Package shared contains the error model used across all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "habit", "progress", "account"
	Op      string // Operation that failed, e.g., "Create", "Toggle"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Habit domain errors
var (
	ErrHabitNotFound = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrEmptyTitle    = NewDomainError("habit", "Validate", ErrEmptyValue, "title is required")
	ErrInvalidTarget = NewDomainError("habit", "Validate", ErrValueOutOfRange, "target value must be between 1 and 2147483647")
	ErrInvalidKind   = NewDomainError("habit", "Validate", ErrInvalidInput, "kind must be boolean or numeric")
	ErrInvalidOwner  = NewDomainError("habit", "Validate", ErrInvalidID, "owner is required")
)

// Progress domain errors
var (
	ErrInvalidDate = NewDomainError("progress", "ParseDate", ErrInvalidFormat, "date must be YYYY-MM-DD")
	ErrFutureDate  = NewDomainError("progress", "ParseDate", ErrFutureTimestamp, "date cannot be in the future")
	ErrZeroDelta   = NewDomainError("progress", "Adjust", ErrInvalidInput, "delta must be non-zero")
	ErrDeltaRange  = NewDomainError("progress", "Adjust", ErrValueOutOfRange, "delta is out of range")
)

// Account domain errors
var (
	ErrUserNotFound        = NewDomainError("account", "Find", ErrNotFound, "user not found")
	ErrUsernameTaken       = NewDomainError("account", "Register", ErrAlreadyExists, "username already taken")
	ErrEmptyUsername       = NewDomainError("account", "Validate", ErrEmptyValue, "username is required")
	ErrWeakPassword        = NewDomainError("account", "Validate", ErrValueOutOfRange, "password must be at least 6 characters")
	ErrInvalidRole         = NewDomainError("account", "Validate", ErrInvalidInput, "role must be user or admin")
	ErrInvalidCredentials  = NewDomainError("account", "Authenticate", ErrUnauthorized, "invalid username or password")
	ErrProgressionNotFound = NewDomainError("progression", "Find", ErrNotFound, "progression not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrFutureTimestamp) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsUnauthorized checks if the caller could not be authenticated.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if the caller lacks permission.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
