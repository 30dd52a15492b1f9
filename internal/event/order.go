package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
	TypeOrderFailed    = "order.failed"
)

const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// OrderEvent is the payload published when an order settles.
type OrderEvent struct {
	EventID     uuid.UUID       `json:"eventId"`
	Type        string          `json:"type"`
	OrderID     uuid.UUID       `json:"orderId"`
	UserID      uuid.UUID       `json:"userId"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	PaymentID   string          `json:"paymentId,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// TypeForStatus returns the event type for a terminal order status.
func TypeForStatus(status string) string {
	return "order." + status
}
