// Package validation validates request payloads with go-playground/validator
// and converts failures into typed validation errors.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"marketplace-gateway/internal/common/errors"
)

// Validator wraps a configured validator instance.
type Validator struct {
	validate *validator.Validate
}

// FieldError is a single failed rule, keyed by the JSON field name.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// New creates a Validator that reports JSON field names and knows the
// gateway's custom rules.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	registerGatewayValidators(v)
	return &Validator{validate: v}
}

// Struct validates s and returns a ValidationError listing every failure.
func (v *Validator) Struct(s interface{}) error {
	fields := v.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return toError(fields)
}

// Var validates a single value against tag.
func (v *Validator) Var(value interface{}, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		return toError(extract(err))
	}
	return nil
}

// Fields returns structured failures for s, or nil when s is valid.
func (v *Validator) Fields(s interface{}) []FieldError {
	if err := v.validate.Struct(s); err != nil {
		return extract(err)
	}
	return nil
}

func toError(fields []FieldError) error {
	if len(fields) == 1 {
		return errors.ValidationError(fields[0].Message)
	}
	messages := make([]string, len(fields))
	for i, f := range fields {
		messages[i] = f.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func extract(err error) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "email":
		return fmt.Sprintf("field '%s' must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", fe.Field(), fe.Param())
	case "cache_pattern":
		return fmt.Sprintf("field '%s' must be a non-empty key pattern without whitespace", fe.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", fe.Field(), fe.Tag())
	}
}

func registerGatewayValidators(v *validator.Validate) {
	// Key patterns are passed to SCAN MATCH; a bare "*" is allowed.
	_ = v.RegisterValidation("cache_pattern", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return p != "" && !strings.ContainsAny(p, " \t\r\n")
	})
}
