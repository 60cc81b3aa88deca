package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	kafkax "github.com/bookmart/orders/internal/kafka"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
	EventOrderReturned  = "OrderReturned"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an event payload in the versioned envelope every
// topic carries.
func NewEnvelope(eventType, producer, orderID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

type OrderPlacedPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Items      []Item    `json:"items"`
	TotalCents int64     `json:"total_cents"`
	ReturnTill time.Time `json:"return_till"`
}

// OrderStatusPayload is shared by every lifecycle event after placement.
type OrderStatusPayload struct {
	OrderID string    `json:"order_id"`
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
}
