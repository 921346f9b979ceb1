package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// BusinessValidator handles business rule validation for attempt payloads.
type BusinessValidator struct {
	validate *validator.Validate
}

func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()
	registerBusinessRules(validate)

	return &BusinessValidator{validate: validate}
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return ToValidationErrors(verrs)
		}
	}
	return nil
}

// ValidateAnswerPayload checks the shape of a submitted answer map before it
// reaches grading: no blank question ids, no blank option keys.
func (bv *BusinessValidator) ValidateAnswerPayload(answers map[string]string) ValidationErrors {
	var errors ValidationErrors

	for questionKey, answerKey := range answers {
		if strings.TrimSpace(questionKey) == "" {
			errors = append(errors, ValidationError{
				Field:   "answers",
				Message: "question id cannot be empty",
				Rule:    "business_logic",
			})
		}
		if strings.TrimSpace(answerKey) == "" {
			errors = append(errors, ValidationError{
				Field:   "answers",
				Message: "answer key cannot be empty",
				Value:   questionKey,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func registerBusinessRules(validate *validator.Validate) {
	// Option key validation (non-empty, short)
	validate.RegisterValidation("option_key", func(fl validator.FieldLevel) bool {
		key := strings.TrimSpace(fl.Field().String())
		return len(key) >= 1 && len(key) <= 10
	})

	// Max attempts validation (0 = unlimited, otherwise 1-100)
	validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 0 && attempts <= 100
	})

	// Cool-down validation (0-365 days, fractional days allowed)
	validate.RegisterValidation("cool_down_days", func(fl validator.FieldLevel) bool {
		days := fl.Field().Float()
		return days >= 0 && days <= 365
	})
}
