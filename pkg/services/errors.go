package services

import (
	"errors"
	"fmt"

	"github.com/jhjames1/peerchat/pkg/models"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrConflict is returned when an operation lost against concurrent state
	ErrConflict = errors.New("conflict")

	// ErrClaimConflict is returned when another specialist claimed the session first
	ErrClaimConflict = errors.New("session already claimed")

	// ErrInvalidTransition is returned when a session status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSessionCreate is returned when the store could not create or look up a session
	ErrSessionCreate = errors.New("failed to create session")

	// ErrForbidden is returned when the caller may not perform an operation
	ErrForbidden = errors.New("forbidden")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AuthorizationError reports an operation attempted by a party that is not
// permitted to perform it. It matches ErrForbidden with errors.Is.
type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to %s: %s", e.Action, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(action, reason string) error {
	return &AuthorizationError{Action: action, Reason: reason}
}

// IsAuthorizationError checks if an error is an authorization error
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// ConflictError reports an operation rejected because of the current state
// of a session or proposal. Current names the state that caused the
// rejection; Session carries the refreshed session when one is known.
type ConflictError struct {
	Op      string
	Current string
	Session *models.ChatSession
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict (current: %s): %v", e.Op, e.Current, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is any kind of conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrClaimConflict) ||
		errors.Is(err, ErrInvalidTransition)
}
