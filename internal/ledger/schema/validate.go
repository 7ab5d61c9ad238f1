package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidAmount is returned when a transaction amount is not positive.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so messages match the file format.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs struct tag validation and turns the first failure
// into a readable error. An amount failure is reported as ErrInvalidAmount.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	for _, fe := range verrs {
		if fe.Field() == "amount" {
			return fmt.Errorf("%w (got %v)", ErrInvalidAmount, fe.Value())
		}
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s] (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Errorf("%s must not be before %s", fe.Field(), snakeCase(fe.Param()))
	case "max":
		return fmt.Errorf("%s must be %s characters or less", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

// snakeCase converts a Go field name like CreatedAt to created_at.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
