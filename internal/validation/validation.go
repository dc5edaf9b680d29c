package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error is returned for malformed, missing or out-of-range input.
type Error struct {
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}

	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(names, ", "))
}

func New(message string, fields ...FieldError) *Error {
	return &Error{Message: message, Fields: fields}
}

func IsValidationError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator shares gin's "binding" tag so request structs carry one set of rules.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.SetTagName("binding")
		v.RegisterTagNameFunc(func(sf reflect.StructField) string {
			name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return sf.Name
			}
			return name
		})
		instance = v
	})

	return instance
}

// Messager lets a request type phrase the top-level message for its own failures.
type Messager interface {
	ValidationMessage(fields []FieldError) string
}

const defaultMessage = "Invalid request body"

// Struct validates v and converts validator failures into *Error.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	return FromValidator(v, verrs)
}

// FromValidator wraps validator errors for v.
func FromValidator(v any, verrs validator.ValidationErrors) *Error {
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: Message(fe.Tag(), fe.Param()),
		})
	}

	return ForFields(v, fields)
}

// ForFields builds an *Error whose message comes from v when it is a Messager.
func ForFields(v any, fields []FieldError) *Error {
	msg := defaultMessage
	if m, ok := v.(Messager); ok {
		if s := m.ValidationMessage(fields); s != "" {
			msg = s
		}
	}

	return New(msg, fields...)
}

// Message renders a short human explanation for a validator rule.
func Message(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "type":
		return "has the wrong type"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}

// HasRule reports whether any field failed the given rule.
func HasRule(fields []FieldError, rule string) bool {
	for _, f := range fields {
		if f.Rule == rule {
			return true
		}
	}
	return false
}
