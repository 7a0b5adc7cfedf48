package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	// ErrDuplicate marks an at-least-once redelivery. It is absorbed, never surfaced as a failure.
	ErrDuplicate = errors.New("duplicate delivery")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StateConflictError reports an illegal alert transition.
type StateConflictError struct {
	AlertID int64
	From    AlertStatus
	To      AlertStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("alert %d cannot move from %s to %s", e.AlertID, e.From, e.To)
}

func (e *StateConflictError) Unwrap() error {
	return ErrStateConflict
}
