package request

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutItem is one line of a checkout. Title, UnitPrice and Image come
// from the client and are only used as display metadata; the charged price is
// always the catalog price.
type CheckoutItem struct {
	ProductID uuid.UUID       `validate:"required"      json:"productId"`
	Title     string          `validate:"max=255"       json:"title"`
	UnitPrice decimal.Decimal `validate:"price"         json:"price"`
	Image     string          `validate:"omitempty,url" json:"image"`
	Quantity  int             `validate:"gte=1"         json:"quantity"`
}

type CreateCheckout struct {
	Products []CheckoutItem `validate:"required,min=1,dive" json:"products"`
}
