package validator

import (
	"chalet/shared/constant"
	"chalet/shared/failure"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	val "github.com/go-playground/validator/v10"
)

var validate *val.Validate

func isDay(field val.FieldLevel) bool {
	value, ok := field.Field().Interface().(string)
	if !ok {
		return false
	}

	_, err := time.Parse(constant.DayFormat, value)

	return err == nil
}

func init() {
	validate = val.New(val.WithRequiredStructEnabled())

	// report json names so messages match what the client sent
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}

		return name
	})

	if err := validate.RegisterValidation("day", isDay); err != nil {
		panic(err)
	}
}

// Validate decodes a JSON body into data and validates it. Decoding errors and rule
// violations are returned as bad request failures.
func Validate[T any](r io.Reader, data *T) error {
	if err := json.NewDecoder(r).Decode(data); err != nil {
		return failure.BadRequest(fmt.Errorf("failed to decode request body: %w", err)) //nolint:wrapcheck
	}

	return ValidateStruct(data)
}

// ValidateStruct reports the first violation as the message and all of them as details.
func ValidateStruct[T any](data *T) error {
	return toFailure(validate.Struct(data))
}

func ValidateVar(field any, tag string) error {
	return toFailure(validate.Var(field, tag))
}

func toFailure(err error) error {
	if err == nil {
		return nil
	}

	details := fieldErrors(err)

	return failure.BadRequestWithDetails(details[0].Message, details) //nolint:wrapcheck
}
