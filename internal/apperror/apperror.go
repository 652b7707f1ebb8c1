// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services return these errors; handlers translate them to HTTP status codes
// with errors.Is, so no layer below the handler needs to know about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPartial marks a multi-step mutation that failed after some steps had
	// already been persisted. A reconciliation run repairs the damage.
	ErrPartial = errors.New("partial failure")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Step    string // Optional: failed step of a multi-step mutation
	Done    int    // Optional: records already written when Step failed
	Cause   error  // Optional: underlying storage error for partial failures
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for a missing or rejected identity.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// PartialFailure reports that step failed after done records had already
// been written. The message tells an operator to run a reconciliation.
func PartialFailure(step string, done int, cause error) *AppError {
	return &AppError{
		Err:     ErrPartial,
		Message: fmt.Sprintf("operation stopped at step %q after %d writes; run a points reconciliation", step, done),
		Step:    step,
		Done:    done,
		Cause:   cause,
	}
}
