package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/quizdeck/attempt-service/internal/validator"
)

// Sentinel errors returned by services and mapped to HTTP statuses in the
// handler layer.
var (
	ErrQuizNotFound            = fmt.Errorf("quiz not found")
	ErrAttemptNotFound         = fmt.Errorf("attempt not found")
	ErrAttemptInProgress       = fmt.Errorf("an attempt is already in progress for this quiz")
	ErrAttemptAlreadyCompleted = fmt.Errorf("attempt is already completed")
	ErrAttemptNotInProgress    = fmt.Errorf("attempt is not in progress")
	ErrUnauthorized            = fmt.Errorf("unauthorized")
)

// RetakeDeniedError reports why a new attempt cannot be started right now.
type RetakeDeniedError struct {
	Reason            string     `json:"reason"`
	NextEligibleAt    *time.Time `json:"next_eligible_at,omitempty"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
}

func (e *RetakeDeniedError) Error() string {
	return fmt.Sprintf("retake denied: %s", e.Reason)
}

// ValidationError describes a single invalid field in a request payload.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates field-level validation failures.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("validation failed with %d errors", len(e.Errors))
}

func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, ValidationError{Field: field, Message: message})
}

func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// wrapValidation converts struct-tag validation failures into the field-level
// error shape clients receive. Anything else passes through wrapped.
func wrapValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := &ValidationErrors{}
		for _, fe := range fieldErrs {
			out.Add(fe.Field, fe.Message)
		}
		return out
	}
	return fmt.Errorf("validation failed: %w", err)
}
