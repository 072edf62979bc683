// Package validation checks form structs with go-playground/validator and
// reports per-field violations as translation codes.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Violations maps a form field to a violation code ("required", "too_long", ...).
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records a violation unless the field already has one.
func (v Violations) Add(field, code string) {
	if _, exists := v[field]; !exists {
		v[field] = code
	}
}

var (
	mu    sync.RWMutex
	codes = map[string]string{
		"required": "required",
		"notblank": "required",
		"max":      "too_long",
		"email":    "invalid_email",
		"oneof":    "invalid_choice",
	}
	defaultValidator = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Violations are keyed by the form field name, not the Go field name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return strings.ToLower(f.Name)
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Rule registers a custom tag whose failure is reported as code. Register
// rules from init, before the first Struct call.
func Rule(tag, code string, fn func(value string) bool) error {
	mu.Lock()
	defer mu.Unlock()
	if err := defaultValidator.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	}); err != nil {
		return err
	}
	codes[tag] = code
	return nil
}

// Struct validates s against its `validate` tags. Each failing field gets the
// code of its first failing rule; unknown rules report "invalid".
func Struct(s any) Violations {
	v := Violations{}
	mu.RLock()
	defer mu.RUnlock()
	err := defaultValidator.Struct(s)
	if err == nil {
		return v
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.Add("form", "invalid")
		return v
	}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if field == "" {
			field = fe.StructField()
		}
		code, ok := codes[fe.ActualTag()]
		if !ok {
			code = "invalid"
		}
		v.Add(field, code)
	}
	return v
}
