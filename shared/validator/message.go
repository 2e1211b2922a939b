package validator

import (
	"errors"
	"strings"

	val "github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"required":   "{field} is required",
	"gte":        "{field} must be greater than or equal to {param}",
	"lte":        "{field} must be less than or equal to {param}",
	"oneof":      "{field} must be one of {param}",
	"max":        "{field} must be at most {param} characters long",
	"email":      "{field} must be a valid email address",
	"day":        "{field} must be a date in YYYY-MM-DD format",
	"startswith": "{field} must start with {param}",
	"uuid":       "{field} must be a valid UUID",
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func fieldErrors(err error) []FieldError {
	var valErrors val.ValidationErrors
	if !errors.As(err, &valErrors) {
		return []FieldError{{Message: err.Error()}}
	}

	res := make([]FieldError, 0, len(valErrors))

	for _, valErr := range valErrors {
		msg, ok := messages[valErr.Tag()]
		if !ok {
			msg = "{field} is invalid"
		}

		// variables validated without a struct have no field name
		field := valErr.Field()
		if field == "" {
			field = "value"
		}

		msg = strings.ReplaceAll(msg, "{field}", field)
		msg = strings.ReplaceAll(msg, "{param}", valErr.Param())

		res = append(res, FieldError{Field: valErr.Field(), Rule: valErr.Tag(), Message: msg})
	}

	return res
}
