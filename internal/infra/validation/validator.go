package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TrimTag marks string fields whose surrounding whitespace is stripped before validation.
const TrimTag = "mod"

var tokenCharset = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// FieldError describes a single violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error enumerates every field that failed validation.
type Error struct {
	Fields []FieldError
}

// Error implements error for Error.
func (e *Error) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s %s", f.Field, f.Message))
	}
	return strings.Join(parts, "; ")
}

// Messages returns the per-field messages keyed by field name.
func (e *Error) Messages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, exists := out[f.Field]; !exists {
			out[f.Field] = f.Message
		}
	}
	return out
}

// Validator checks request payloads against their declarative schemas.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the custom rules used by the moderation API.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	// Registration only fails on programmer error (empty tag or nil func).
	_ = v.RegisterValidation("token", func(fl validator.FieldLevel) bool {
		return tokenCharset.MatchString(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Struct normalizes and validates the struct pointed to by ptr.
// It returns *Error when any constraint is violated.
func (v *Validator) Struct(ptr any) error {
	Normalize(ptr)

	if err := v.validate.Struct(ptr); err != nil {
		return translate(err)
	}
	return nil
}

// Var validates a single value under the given field name.
func (v *Validator) Var(field string, value any, rules string) error {
	if err := v.validate.Var(value, rules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			out := &Error{Fields: make([]FieldError, 0, len(verrs))}
			for _, fe := range verrs {
				out.Fields = append(out.Fields, FieldError{Field: field, Rule: fe.Tag(), Message: message(fe)})
			}
			return out
		}
		return err
	}
	return nil
}

// Normalize trims every string field tagged `mod:"trim"` on the struct pointed to by ptr.
func Normalize(ptr any) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.Tag.Get(TrimTag) != "trim" {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}
		switch {
		case fv.Kind() == reflect.String:
			fv.SetString(strings.TrimSpace(fv.String()))
		case fv.Kind() == reflect.Pointer && !fv.IsNil() && fv.Elem().Kind() == reflect.String:
			fv.Elem().SetString(strings.TrimSpace(fv.Elem().String()))
		}
	}
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "ip":
		return "must be a valid IPv4 or IPv6 address"
	case "token":
		return "contains invalid characters"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
