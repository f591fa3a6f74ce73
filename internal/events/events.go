package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
)

// Envelope is the versioned wire contract between services. Consumers
// dispatch on EventType/EventVersion, never on payload shape.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderItemEvent struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type OrderCreatedPayload struct {
	OrderID string           `json:"order_id"`
	UserID  string           `json:"user_id"`
	Items   []OrderItemEvent `json:"items"`
}

type OrderCancelledPayload struct {
	OrderID string           `json:"order_id"`
	UserID  string           `json:"user_id"`
	Items   []OrderItemEvent `json:"items"`
}

// NewEnvelope wraps a payload; delivery is at-least-once, so EventID is the
// consumer's dedup handle.
func NewEnvelope(eventType, producer, orderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}
