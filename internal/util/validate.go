package util

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var addressRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NewValidator returns a validator that reports fields by their JSON name and
// understands the "address" tag for email addresses.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return IsEmailAddress(fl.Field().String())
	})
	return v
}

// IsEmailAddress reports whether s looks like an email address.
func IsEmailAddress(s string) bool {
	return addressRegex.MatchString(s)
}

// FieldErrors turns a validation failure into per-field messages keyed by
// JSON name, plus the same messages in field declaration order.
func FieldErrors(err error) (map[string]string, []string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, nil
	}

	fields := make(map[string]string, len(verrs))
	ordered := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		msg := fieldMessage(fe)
		fields[fe.Field()] = msg
		ordered = append(ordered, msg)
	}
	return fields, ordered
}

func fieldMessage(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "address", "email":
		return "Please enter a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "url", "http_url":
		return label + " must be a valid http or https URL"
	default:
		return label + " is invalid"
	}
}

// humanize turns "firstName" into "First name".
func humanize(field string) string {
	var b strings.Builder
	for i, r := range field {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
