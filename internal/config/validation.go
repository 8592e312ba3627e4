package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hengadev/errsx"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct checks v against its `validate` struct tags. Every failing
// field is reported, keyed by its namespace without the root type name.
// The returned error is an errsx.Map.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	var errs errsx.Map
	for _, e := range validationErrs {
		errs.Set(fieldPath(e), formatFieldError(e))
	}
	return errs.AsError()
}

func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatFieldError(e validator.FieldError) error {
	switch e.Tag() {
	case "required":
		return errors.New("field is required")
	case "min":
		return fmt.Errorf("must be at least %s", e.Param())
	case "max":
		return fmt.Errorf("must not exceed %s", e.Param())
	case "len":
		return fmt.Errorf("must have length %s", e.Param())
	case "oneof":
		return fmt.Errorf("must be one of [%s], got %v", e.Param(), e.Value())
	case "hexadecimal":
		return errors.New("must be hexadecimal")
	default:
		return fmt.Errorf("validation failed (%s)", e.Tag())
	}
}
