package service

import (
	"errors"
	"fmt"
)

// Standard errors shared by every ledger workflow. Callers match them with
// errors.Is; the typed errors below wrap one of these.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrAlreadySettled    = errors.New("ledger entry already settled")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

// Stable machine-readable codes returned by Code.
const (
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyProcessed  = "ALREADY_PROCESSED"
	CodeAlreadySettled    = "ALREADY_SETTLED"
	CodeNotFound          = "NOT_FOUND"
	CodePersistence       = "PERSISTENCE_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrAlreadyProcessed, CodeAlreadyProcessed},
	{ErrAlreadySettled, CodeAlreadySettled},
	{ErrNotFound, CodeNotFound},
	{ErrPersistence, CodePersistence},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrForbidden, CodeForbidden},
	{ErrConflict, CodeConflict},
}

// Code maps an error to its stable code. Nil maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// PublicMessage returns the message a caller may see. Storage details are
// only exposed to admins.
func PublicMessage(err error, admin bool) string {
	if err == nil {
		return ""
	}
	switch Code(err) {
	case CodePersistence:
		if admin {
			return err.Error()
		}
		return "the operation could not be completed, please retry"
	case CodeInternal:
		if admin {
			return err.Error()
		}
		return "internal error"
	default:
		return err.Error()
	}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a rejected field before any mutation took place.
// Base is ErrInvalidInput unless set.
type ValidationError struct {
	Field   string
	Message string
	Base    error
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Base: ErrInvalidInput}
}

// NewAmountError reports an amount outside the accepted range.
func NewAmountError(message string) *ValidationError {
	return &ValidationError{Field: "amount", Message: message, Base: ErrInvalidAmount}
}

// RequiredError is shorthand for a missing required field.
func RequiredError(field string) *ValidationError {
	return NewValidationError(field, "is required")
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	if e.Base == nil {
		return ErrInvalidInput
	}
	return e.Base
}

// TransitionError is returned when a status change is not an edge of the
// entity's state machine.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ProcessedError is returned when an admin action targets an entity that has
// already left its initial state.
type ProcessedError struct {
	Entity string
	ID     string
	Status string
}

func (e *ProcessedError) Error() string {
	return fmt.Sprintf("%s %q already %s", e.Entity, e.ID, e.Status)
}

func (e *ProcessedError) Unwrap() error { return ErrAlreadyProcessed }

// InsufficientFundsError carries the balance seen at the time of the check.
type InsufficientFundsError struct {
	UserID    string
	Available string
	Requested string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for user %s: available %s, requested %s", e.UserID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// PersistenceError wraps a storage or transaction fault.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewConflictError reports a uniqueness violation on the given key.
func NewConflictError(resource, key string) error {
	return fmt.Errorf("%s %q: %w", resource, key, ErrConflict)
}

// ServiceError attaches the service and operation to an underlying error.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// WrapServiceError returns nil when err is nil.
func WrapServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
func IsPersistence(err error) bool       { return errors.Is(err, ErrPersistence) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }
