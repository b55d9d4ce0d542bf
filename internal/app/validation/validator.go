// Package validation validates request structs with go-playground/validator.
// Failures are reported as VALIDATION_ERROR service errors naming each field
// by its JSON name.
package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/coopenergy/platform/internal/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Get returns the shared validator instance.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// RegisterStructRule adds a cross-field rule for the given struct types.
func RegisterStructRule(fn validator.StructLevelFunc, types ...interface{}) {
	Get().RegisterStructValidation(fn, types...)
}

// Struct validates s. It returns nil or a *errors.ServiceError with code
// VALIDATION_ERROR whose details list the failing fields.
func Struct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Validation(err.Error(), err)
	}

	messages := make([]string, 0, len(fieldErrs))
	fields := make([]map[string]interface{}, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := message(fe)
		messages = append(messages, msg)
		fields = append(fields, map[string]interface{}{
			"field":   fe.Field(),
			"tag":     fe.Tag(),
			"message": msg,
		})
	}
	return errors.Validation(strings.Join(messages, "; "), err).WithDetails("fields", fields)
}

var templates = map[string]string{
	"required":    "%s is required",
	"required_if": "%s is required",
	"email":       "%s must be a valid email address",
	"url":         "%s must be a valid URL",
	"uuid":        "%s must be a UUID",

	"required_for_preferred": "%s must be true for a preferred vendor",
}

var paramTemplates = map[string]string{
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"max":   "%s must be at most %s",
	"min":   "%s must be at least %s",
	"oneof": "%s must be one of: %s",
}

func message(fe validator.FieldError) string {
	if t, ok := templates[fe.Tag()]; ok {
		return fmt.Sprintf(t, fe.Field())
	}
	if t, ok := paramTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(t, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
