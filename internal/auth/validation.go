package auth

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// newValidator builds the request validator. Field names in messages use
// the json tag so clients see the names they sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", validatePassword)

	return v
}

// passwordPolicy describes passwordMeetsPolicy to clients
const passwordPolicy = "must be at least 8 characters with 1 uppercase letter and 1 number"

func validatePassword(fl validator.FieldLevel) bool {
	return passwordMeetsPolicy(fl.Field().String())
}

// passwordMeetsPolicy requires at least 8 characters, one uppercase letter and one digit
func passwordMeetsPolicy(password string) bool {
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasDigit
}

// validationMessage turns validator errors into one readable line
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "validation failed"
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, e.Field()+" "+formatFieldError(e))
	}
	return strings.Join(messages, "; ")
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must not exceed " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "datetime":
		return "must be a date in " + e.Param() + " format"
	case "password":
		return passwordPolicy
	default:
		return "is invalid"
	}
}
