// Package validation provides request validation utilities using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
)

// MaxIDLength bounds user, book, and session identifiers.
const MaxIDLength = 128

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for our domain.
//
// Besides the stock tags it registers "entityid": a non-blank identifier
// without ':' (the store joins ids into composite keys with it) and at most
// MaxIDLength bytes.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	//nolint:errcheck // tag name is static
	v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) != "" && len(s) <= MaxIDLength && !strings.ContainsAny(s, ": \t\n")
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// ValidateID checks a single identifier, reporting problems under field.
func (v *Validator) ValidateID(field, value string) error {
	if err := v.v.Var(value, "entityid"); err != nil {
		return domainerrors.ValidationWithDetails("validation failed", map[string]string{
			field: "must be a non-empty identifier without ':' or whitespace",
		})
	}
	return nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "entityid":
		return "must be a non-empty identifier without ':' or whitespace"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "datetime":
		return "must match layout " + e.Param()
	case "excluded_with":
		return "cannot be combined with " + e.Param()
	case "required_without":
		return "is required when " + e.Param() + " is absent"
	default:
		return "is invalid"
	}
}
