// Package validate holds the shared go-playground validator instance and
// turns its field errors into errs.ErrKindValidation errors that name the
// JSON field, not the Go struct field.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/koustreak/relicmart/internal/errs"
)

// identPattern is the only shape a table name may take before it is
// interpolated into DDL/DML.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
			return IsIdent(fl.Field().String())
		})
	})
	return v
}

// IsIdent reports whether s is a safe SQL identifier.
func IsIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Struct validates s and returns a validation *errs.Error listing every
// failing field, or nil.
func Struct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errs.Wrap(errs.ErrKindValidation, "invalid input", err)
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, describe(fe))
	}
	return errs.Wrap(errs.ErrKindValidation, strings.Join(msgs, "; "), nil)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "sqlident":
		return fmt.Sprintf("%s must start with a letter or underscore and contain only letters, digits and underscores (max 63)", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}
