package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrVersionMismatch   = errors.New("record was modified concurrently")
	ErrExternal          = errors.New("external collaborator failure")
)

// ConflictError возвращается при попытке создать опасность с уже занятым отпечатком
type ConflictError struct {
	ExistingID  uuid.UUID
	Fingerprint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("hazard with fingerprint %s already exists: %s", e.Fingerprint, e.ExistingID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError описывает некорректное поле входных данных
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError - недопустимый переход конечного автомата
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
