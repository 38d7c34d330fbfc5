package core

// validation.go checks normalized rows against the field constraints declared
// in the ImportRow struct tags.
//
// Normalization attaches failures as advisories. Operator edits are rejected
// outright when they fail, see Session.EditRow.

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // JSON field name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

var rowValidate = newRowValidator()

func newRowValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return isPhone(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// ValidateRow returns every constraint the row violates. An empty result
// means the row is valid.
func ValidateRow(row ImportRow) []ValidationError {
	err := rowValidate.Struct(row)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fieldName(fe),
			Value:   fmt.Sprint(fe.Value()),
			Message: validationMessage(fe),
		})
	}
	return out
}

// fieldName strips the struct prefix and keeps list indexes, e.g.
// "emails[1]".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return "invalid email address"
	case "phone":
		return fmt.Sprintf("phone needs at least %d digits", MinPhoneDigits)
	case "max":
		return fmt.Sprintf("longer than %s characters", fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("must be between 0 and %d", MaxRating)
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
