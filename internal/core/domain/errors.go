package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Ledger Errors
// =============================================================================

var (
	// ErrValidation is the cause of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the cause of every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a disallowed diagram status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyExists is the cause of every ConflictError.
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError reports an entity that could not be resolved.
type NotFoundError struct {
	Entity string // "site", "diagram", "rollback target"
	ID     string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError reports an entity whose identifier is already taken.
type ConflictError struct {
	Entity string
	ID     string
}

// NewConflictError creates a ConflictError.
func NewConflictError(entity, id string) *ConflictError {
	return &ConflictError{Entity: entity, ID: id}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

func (e *ConflictError) Unwrap() error {
	return ErrAlreadyExists
}

// TransitionError reports a rejected diagram status change.
type TransitionError struct {
	From DiagramStatus
	To   DiagramStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
