package service

import (
	"github.com/shopspring/decimal"
)

const pricePlaces = 2

var (
	TaxRate     = decimal.RequireFromString("0.08")
	ShippingFee = decimal.Zero
)

type Summary struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Summarize prices lines as subtotal, tax and total. Tax and total are each
// rounded half away from zero to cents.
func Summarize(lineTotals []decimal.Decimal) Summary {
	subtotal := decimal.Sum(decimal.Zero, lineTotals...)
	tax := subtotal.Mul(TaxRate).Round(pricePlaces)
	total := subtotal.Add(tax).Add(ShippingFee).Round(pricePlaces)
	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: ShippingFee,
		Total:    total,
	}
}

func LineTotal(price decimal.Decimal, quantity int32) decimal.Decimal {
	return price.Mul(decimal.NewFromInt32(quantity))
}
