package response

import (
	"github.com/Alturino/storefront/internal/repository"
)

func FromOrder(o repository.Order, items []OrderItem) Order {
	if items == nil {
		items = []OrderItem{}
	}
	order := Order{
		ID:               o.ID,
		UserID:           o.UserID,
		Products:         items,
		TotalAmount:      repository.DecimalFromNumeric(o.TotalAmount),
		Status:           string(o.Status),
		PaymentSessionID: o.PaymentSessionID,
		PaidAt:           repository.TimePtr(o.PaidAt),
		CreatedAt:        o.CreatedAt.Time,
		UpdatedAt:        o.UpdatedAt.Time,
	}
	if o.PaymentID.Valid {
		paymentID := o.PaymentID.String
		order.PaymentID = &paymentID
	}
	return order
}
