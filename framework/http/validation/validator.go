package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ── Types ────────────────────────────────────────────────────────────────────

// Errors holds validation errors keyed by field.
// JSON output: {"errors": {"field": ["msg1", "msg2"]}}
type Errors struct {
	Bag map[string][]string `json:"errors"`
}

func (e *Errors) add(field, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[field] = append(e.Bag[field], msg)
}

// Has returns true if there are any errors.
func (e *Errors) Has() bool { return e != nil && len(e.Bag) > 0 }

// First returns the first error for a field.
func (e *Errors) First(field string) string {
	if e == nil {
		return ""
	}
	if msgs, ok := e.Bag[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *Errors) Error() string {
	var parts []string
	for field, msgs := range e.Bag {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ── Validator ────────────────────────────────────────────────────────────────

// Theme and tag names end up in CSS classes and URL paths.
var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s against its `validate` tags. It returns nil when s is
// valid, otherwise the error bag.
//
//	type themeRequest struct {
//	    Theme string `json:"theme" validate:"required,slug,max=32"`
//	}
func Struct(s any) *Errors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs := &Errors{}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.add("_", err.Error())
		return errs
	}
	top := reflect.Indirect(reflect.ValueOf(s)).Type().Name()
	for _, fe := range fieldErrs {
		errs.add(fieldPath(top, fe), message(fe))
	}
	return errs
}

// fieldPath drops the top-level struct name: "selectRequest.author.name"
// becomes "author.name". Anonymous structs have no such prefix.
func fieldPath(top string, fe validator.FieldError) string {
	if top == "" {
		return fe.Namespace()
	}
	return strings.TrimPrefix(fe.Namespace(), top+".")
}

func message(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("The %s field is required.", field)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "url":
		return fmt.Sprintf("The %s must be a valid URL.", field)
	case "slug":
		return fmt.Sprintf("The %s may only contain letters, numbers, dashes and underscores.", field)
	default:
		return fmt.Sprintf("The %s format is invalid.", field)
	}
}
