package response

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Alturino/storefront/internal/catalog"
)

type CartItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int32     `json:"quantity"`
}

// Cart is the stored cart as returned by mutations.
type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type CartLine struct {
	Product   catalog.Product `json:"product"`
	Quantity  int32           `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CartView is the cart joined with the catalog plus its pricing summary.
type CartView struct {
	ID       uuid.UUID       `json:"id"`
	UserID   uuid.UUID       `json:"userId"`
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}
