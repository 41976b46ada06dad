package utils

import (
	"reflect"
	"strings"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the service's custom rules.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()
	RegisterCustomValidators(validate)
	return &Validator{validate: validate}
}

func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

func ValidateQuestionType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == string(models.SingleChoice) || value == string(models.MultipleChoice)
}

func ValidateViolationKind(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, kind := range models.KnownViolationKinds() {
		if string(kind) == value {
			return true
		}
	}
	// Unknown kinds are still recorded; prevention is best-effort and the
	// client may report events it could not suppress.
	return value != ""
}

// RegisterCustomValidators registers all custom validators.
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", ValidateQuestionType)
	validate.RegisterValidation("violation_kind", ValidateViolationKind)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
