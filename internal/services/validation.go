package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError rejects malformed input before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// RouterOS names may not contain whitespace or the API's reserved characters
	_ = v.RegisterValidation("routeros_name", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), " \t\r\n=?<>")
	})
	return v
}

// validateStruct runs struct tags and converts the first failure.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "max":
		return &ValidationError{Field: field, Message: "must be at most " + fe.Param()}
	case "min":
		return &ValidationError{Field: field, Message: "must be at least " + fe.Param()}
	case "email":
		return &ValidationError{Field: field, Message: "must be a valid email address"}
	case "oneof":
		return &ValidationError{Field: field, Message: "must be one of " + fe.Param()}
	case "gte":
		return &ValidationError{Field: field, Message: "must be " + fe.Param() + " or more"}
	case "lte":
		return &ValidationError{Field: field, Message: "must be " + fe.Param() + " or less"}
	case "routeros_name":
		return &ValidationError{Field: field, Message: "contains characters the router does not accept"}
	}
	return &ValidationError{Field: field, Message: "is invalid"}
}
