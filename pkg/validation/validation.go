// Package validation wraps go-playground/validator for request structs and
// reports the first failure as an invalid_input domain error named by the
// field's JSON name.
package validation

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"consentis/pkg/didkey"
	dErrors "consentis/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("base58", func(fl validator.FieldLevel) bool {
		return didkey.ValidBase58(fl.Field().String())
	})
	_ = v.RegisterValidation("did", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		parts := strings.SplitN(s, ":", 3)
		return len(parts) == 3 && parts[0] == "did" && parts[1] != "" && parts[2] != ""
	})
	return v
}

// Validate runs the struct tags of req and reports the first failing
// field as an invalid_input error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, ErrorMessage(err))
	}
	return nil
}

// tagMessages maps a validator tag to a message format. %[1]s is the JSON
// field name, %[2]s the tag parameter.
var tagMessages = map[string]string{
	"required": "%[1]s is required",
	"url":      "%[1]s must be a valid url",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
	"oneof":    "%[1]s must be one of [%[2]s]",
	"notblank": "%[1]s must not be blank",
	"base58":   "%[1]s must be base58",
	"did":      "%[1]s must be a DID",
}

func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	fe := fieldErrs[0]
	field := cmp.Or(fe.Field(), fe.StructField())
	if format, ok := tagMessages[fe.ActualTag()]; ok {
		return fmt.Sprintf(format, field, fe.Param())
	}
	if field == "" {
		return "invalid request body"
	}
	return field + " is invalid"
}
