// Package validate checks request payloads against struct-tag constraints
// and reports failures per field.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Field error messages shared by decoders and validators.
const (
	MsgRequired = "This field is required."
	MsgNotNull  = "This field may not be null."
	MsgBoolean  = "Must be a valid boolean."
	MsgString   = "Not a valid string."
	MsgDate     = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	MsgUsername = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	MsgBadJSON  = "Malformed JSON body."
	MsgNullChar = "Null characters are not allowed."
)

// NonFieldKey collects errors that are not tied to a single field.
const NonFieldKey = "non_field_errors"

// usernamePattern accepts Unicode letters and digits plus @ . + - _.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// Errors maps a wire field name to its problems.
type Errors map[string][]string

// Add records a problem for field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Error implements error.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e[field], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// OrNil returns nil when no problems were recorded.
func (e Errors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Merge copies problems from other into e.
func (e Errors) Merge(other Errors) {
	for field, msgs := range other {
		e[field] = append(e[field], msgs...)
	}
}

// AsErrors extracts field errors from err.
func AsErrors(err error) (Errors, bool) {
	var fieldErrs Errors
	if errors.As(err, &fieldErrs) {
		return fieldErrs, true
	}
	return nil, false
}

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct validates v and returns Errors describing every failed constraint.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := Errors{}
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "username":
		return MsgUsername
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	default:
		return "Invalid value."
	}
}
