package utils

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// payloadValidator checks decoded request payloads. Field names follow the json tags.
var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// tagMessages renders one failed rule; %s is the field path, %v the rule parameter.
var tagMessages = map[string]string{
	"required": "%s is required",
	"min":      "%s must be at least %v",
	"max":      "%s must be at most %v",
	"gt":       "%s must be greater than %v",
	"gte":      "%s must be %v or more",
	"oneof":    "%s must be one of: %v",
}

// ValidateStruct validates a decoded payload and reports every failing field.
func ValidateStruct(s interface{}) error {
	err := payloadValidator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	return NewValidationError(fieldErrs)
}

// ValidationError carries one message per failing field, keyed by dotted json path.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, msg := range e.Fields {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return e.Message + ": " + strings.Join(msgs, "; ")
}

// NewValidationError converts validator output into a ValidationError.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		path := fieldPath(fe)
		if format, ok := tagMessages[fe.Tag()]; ok {
			fields[path] = fmt.Sprintf(format, path, fe.Param())
			continue
		}
		fields[path] = fmt.Sprintf("%s failed the %q rule", path, fe.Tag())
	}
	return &ValidationError{Message: "Validation failed", Fields: fields}
}

// fieldPath drops the root struct name: "WorkflowEvent.progress" becomes "progress".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// GetValidationFields returns the per-field messages of err, or nil.
func GetValidationFields(err error) map[string]string {
	var target *ValidationError
	if !errors.As(err, &target) {
		return nil
	}
	return target.Fields
}

// FieldsToDetails adapts field messages to an error response details map.
func FieldsToDetails(fields map[string]string) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return details
}
