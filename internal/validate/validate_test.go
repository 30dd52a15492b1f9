package validate

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	inErrors "github.com/Alturino/storefront/internal/errors"
)

type priced struct {
	Title string           `validate:"required"`
	Price decimal.Decimal  `validate:"price"`
	Sale  *decimal.Decimal `validate:"omitempty,price"`
}

func TestStruct(t *testing.T) {
	negative := decimal.NewFromInt(-1)
	sale := decimal.RequireFromString("4.99")

	tests := []struct {
		name        string
		input       priced
		expectedErr error
	}{
		{
			name:        "given positive price should pass",
			input:       priced{Title: "mug", Price: decimal.RequireFromString("10.00")},
			expectedErr: nil,
		},
		{
			name:        "given positive optional price should pass",
			input:       priced{Title: "mug", Price: decimal.NewFromInt(10), Sale: &sale},
			expectedErr: nil,
		},
		{
			name:        "given zero price should fail",
			input:       priced{Title: "mug"},
			expectedErr: inErrors.ErrInvalidArgument,
		},
		{
			name:        "given negative optional price should fail",
			input:       priced{Title: "mug", Price: decimal.NewFromInt(10), Sale: &negative},
			expectedErr: inErrors.ErrInvalidArgument,
		},
		{
			name:        "given missing title should fail",
			input:       priced{Price: decimal.NewFromInt(10)},
			expectedErr: inErrors.ErrInvalidArgument,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Struct(context.Background(), test.input)
			if test.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, test.expectedErr)
		})
	}
}
