package request

import (
	"github.com/shopspring/decimal"
)

type CreateProduct struct {
	Title       string          `validate:"required,max=255"  json:"title"`
	Description string          `validate:"max=4096"          json:"description"`
	Category    string          `validate:"max=255"           json:"category"`
	Price       decimal.Decimal `validate:"price"             json:"price"`
	Image       string          `validate:"omitempty,url"     json:"image"`
}

// UpdateProduct is a sparse patch. Nil fields keep their stored value.
type UpdateProduct struct {
	Title       *string          `validate:"omitnil,min=1,max=255"   json:"title"`
	Description *string          `validate:"omitempty,max=4096"      json:"description"`
	Category    *string          `validate:"omitempty,max=255"       json:"category"`
	Price       *decimal.Decimal `validate:"omitnil,price"           json:"price"`
	Image       *string          `validate:"omitempty,url"           json:"image"`
}

func (u UpdateProduct) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil && u.Price == nil && u.Image == nil
}
