package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = newRequestValidator()

// newRequestValidator reports fields by their json names.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := first.Field()
			switch first.Tag() {
			case "required":
				return fmt.Errorf("%s is required", field)
			case "min":
				if first.Kind() == reflect.Slice {
					return fmt.Errorf("%s needs at least %s entries", field, first.Param())
				}
				return fmt.Errorf("%s must be at least %s characters", field, first.Param())
			case "max":
				return fmt.Errorf("%s must be at most %s characters", field, first.Param())
			case "gt":
				return fmt.Errorf("%s must be positive", field)
			case "gtfield":
				return fmt.Errorf("%s must be after %s", field, toJSONName(first.Param()))
			default:
				return fmt.Errorf("invalid %s", field)
			}
		}

		return fmt.Errorf("invalid request payload")
	}

	return nil
}

// toJSONName converts a Go field name like StartDate to start_date.
func toJSONName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
