package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

// Validator validates structs using `validate` tags.
//
// On top of the go-playground rules it registers hex (lorawan.ParseHex
// accepts the string), bytes=N (hex decodes to exactly N bytes) and
// direction (lorawan.ParseDirection accepts the string). Empty strings pass
// the custom rules; combine with required where a value is mandatory.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	v := validator.New()

	// Report json names in errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "hex", validateHex)
	mustRegister(v, "bytes", validateBytes)
	mustRegister(v, "direction", validateDirection)

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Validate validates a struct. The error names the first failing field and
// wraps the lorawan error for hex and direction failures.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("%s: %w", fe.Field(), fieldError(fe))
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return errors.New("field is required")
	case "hex", "bytes":
		s, _ := fe.Value().(string)
		b, err := lorawan.ParseHex(s)
		if err != nil {
			return err
		}
		return fmt.Errorf("must be %s bytes, got %d", fe.Param(), len(b))
	case "direction":
		s, _ := fe.Value().(string)
		if _, err := lorawan.ParseDirection(s); err != nil {
			return err
		}
		return errors.New("must be up or down")
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Errorf("maximum length is %s", fe.Param())
		}
		return fmt.Errorf("maximum is %s", fe.Param())
	default:
		return fmt.Errorf("failed %s validation", fe.Tag())
	}
}

func validateHex(fl validator.FieldLevel) bool {
	s, ok := stringField(fl)
	if !ok {
		return false
	}
	if s == "" {
		return true
	}
	_, err := lorawan.ParseHex(s)
	return err == nil
}

func validateBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	s, ok := stringField(fl)
	if !ok {
		return false
	}
	if s == "" {
		return true
	}
	b, err := lorawan.ParseHex(s)
	return err == nil && len(b) == n
}

func validateDirection(fl validator.FieldLevel) bool {
	s, ok := stringField(fl)
	if !ok {
		return false
	}
	if s == "" {
		return true
	}
	_, err := lorawan.ParseDirection(s)
	return err == nil
}

func stringField(fl validator.FieldLevel) (string, bool) {
	if fl.Field().Kind() != reflect.String {
		return "", false
	}
	return fl.Field().String(), true
}
