package response

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Alturino/storefront/internal/catalog"
)

type CheckoutSession struct {
	URL       string    `json:"url"`
	SessionID string    `json:"sessionId"`
	OrderID   uuid.UUID `json:"orderId"`
}

// OrderItem carries the product as it is in the catalog now. Product is nil
// once the product has been deleted.
type OrderItem struct {
	ProductID uuid.UUID        `json:"productId"`
	Product   *catalog.Product `json:"product"`
	Quantity  int32            `json:"quantity"`
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"userId"`
	Products         []OrderItem     `json:"products"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Status           string          `json:"status"`
	PaymentSessionID string          `json:"paymentSessionId"`
	PaymentID        *string         `json:"paymentId"`
	PaidAt           *time.Time      `json:"paidAt"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
