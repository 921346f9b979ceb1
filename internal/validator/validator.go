package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator used across services and handlers.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()
	registerBusinessRules(validate)
	return &Validator{validate: validate}
}

// Validate runs struct tag validation and returns nil on success.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return ToValidationErrors(verrs)
		}
		return err
	}
	return nil
}

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// ToValidationErrors converts go-playground errors into the API error shape.
func ToValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, err := range errs {
		out = append(out, ValidationError{
			Field:   err.Field(),
			Message: messageFor(err),
			Value:   err.Value(),
			Rule:    err.Tag(),
		})
	}
	return out
}

func messageFor(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}
