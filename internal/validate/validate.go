package validate

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	inErrors "github.com/Alturino/storefront/internal/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		_ = validate.RegisterValidation("price", validatePrice)
	})
	return validate
}

// Struct validates v and wraps failures as invalid argument errors.
func Struct(c context.Context, v interface{}) error {
	if err := Get().StructCtx(c, v); err != nil {
		return fmt.Errorf("%w: %w", inErrors.ErrInvalidArgument, err)
	}
	return nil
}

func decimalValue(v reflect.Value) interface{} {
	d, ok := v.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	return d.String()
}

// validatePrice accepts strictly positive amounts.
func validatePrice(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive()
}
