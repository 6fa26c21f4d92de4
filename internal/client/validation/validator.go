// Package validation checks form payloads before they are sent to the API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator with the invoice rules.
type Validator struct {
	validator *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		return v.Interface().(models.Amount).InexactFloat64()
	}, models.Amount{})
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		return v.Interface().(models.Date).String()
	}, models.Date{})

	registerCustomValidators(validate)

	// Use JSON field names for validation error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validator: validate}
}

// Validate checks a struct and returns *ValidationError on failure.
func (v *Validator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return NewValidationError(verrs)
	}
	return err
}

// ValidationError lists the failed rules in field order.
type ValidationError struct {
	Fields   []string
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, " ")
}

// ClientError converts e into the client error taxonomy, so callers handle
// local and remote validation failures the same way.
func (e *ValidationError) ClientError() *client.Error {
	return &client.Error{
		Kind:    client.KindValidation,
		Message: "Validation failed.",
		Errors:  append([]string(nil), e.Messages...),
		Err:     e,
	}
}

// HasField reports whether the named JSON field failed.
func (e *ValidationError) HasField(name string) bool {
	for _, f := range e.Fields {
		if f == name {
			return true
		}
	}
	return false
}

func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	out := &ValidationError{}
	for _, err := range errs {
		field := err.Field()
		label := humanize(field)

		var msg string
		switch err.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required.", label)
		case "email":
			msg = fmt.Sprintf("%s must be a valid email address.", label)
		case "eqfield":
			msg = "Passwords do not match!"
		case "positive_amount":
			msg = fmt.Sprintf("%s must be greater than zero.", label)
		case "invoice_number":
			msg = fmt.Sprintf("%s must not be blank or contain '/'.", label)
		case "oneof":
			msg = fmt.Sprintf("%s must be one of: %s.", label, strings.ReplaceAll(err.Param(), " ", ", "))
		default:
			msg = fmt.Sprintf("%s is invalid.", label)
		}
		out.Fields = append(out.Fields, field)
		out.Messages = append(out.Messages, msg)
	}
	return out
}

func registerCustomValidators(validate *validator.Validate) {
	// Invoice numbers travel in URL paths.
	_ = validate.RegisterValidation("invoice_number", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) != "" && !strings.Contains(s, "/")
	})

	_ = validate.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			return fl.Field().Float() > 0
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return fl.Field().Int() > 0
		default:
			return false
		}
	})
}

// humanize turns a JSON name like "dueDate" into "Due date".
func humanize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteByte(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
