package request

import (
	"github.com/google/uuid"
)

type AddItem struct {
	ProductID uuid.UUID `validate:"required" json:"productId"`
	// Quantity defaults to 1 when omitted. Present values must be positive.
	Quantity *int `json:"quantity"`
}

type UpdateQuantity struct {
	NewQuantity *int `validate:"required" json:"newQuantity"`
}
