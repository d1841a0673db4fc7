package market

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func productValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			for _, c := range Categories {
				if c == name {
					return true
				}
			}
			return false
		})
	})
	return validate
}

// ValidateProduct checks a finalized product before it enters the store.
// Field failures are reported as a ValidationError naming the first bad field.
func ValidateProduct(p Product) error {
	err := productValidator().Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: strings.ToLower(fe.Field()), Reason: "failed " + fe.Tag()}
	}
	return err
}
