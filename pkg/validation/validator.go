package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
)

var (
	roleNamePattern    = regexp.MustCompile(`^[a-z][a-z0-9_]{0,99}$`)
	emailPattern       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	resourceKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_/:.\-*]+$`)
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return IsRoleName(fl.Field().String())
	})
	v.RegisterValidation("looseemail", func(fl validator.FieldLevel) bool {
		return IsEmail(fl.Field().String())
	})
	v.RegisterValidation("resourcekey", func(fl validator.FieldLevel) bool {
		return resourceKeyPattern.MatchString(fl.Field().String())
	})
	return v
}

// IsRoleName reports whether name is a lower snake case role identifier
func IsRoleName(name string) bool {
	return roleNamePattern.MatchString(name)
}

// IsEmail applies the permissive address check used for invitations
func IsEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail lower-cases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Struct validates v and returns a validation error naming every failed field
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Validation(err.Error())
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return apperrors.Validation(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "rolename":
		return fmt.Sprintf("%s must be lower snake case", field)
	case "looseemail":
		return fmt.Sprintf("%s is not a valid email address", field)
	case "gt", "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
