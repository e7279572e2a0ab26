package editor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of v and converts the first failure
// into a *ValidationError with a readable reason.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verr validator.ValidationErrors
	if !errors.As(err, &verr) || len(verr) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verr[0]
	field := fe.Field()
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "max":
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		reason = fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		reason = fmt.Sprintf("must be at least %s", fe.Param())
	default:
		reason = "failed " + fe.Tag()
	}
	return &ValidationError{Field: field, Reason: reason}
}

// requireText trims s and rejects empty or over-long values.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: field, Reason: "is required"}
	}
	if max > 0 && len([]rune(s)) > max {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	return s, nil
}
