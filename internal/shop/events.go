package shop

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "shop-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID         int64           `json:"order_id"`
	UserID          string          `json:"user_id"`
	Status          Status          `json:"status"`
	Action          string          `json:"action"`
	Total           decimal.Decimal `json:"total"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Lines           []OrderLine     `json:"lines"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Order rebuilds the order snapshot carried by the payload.
func (p OrderPlacedPayload) Order() Order {
	return Order{
		ID:              p.OrderID,
		UserID:          p.UserID,
		Total:           p.Total,
		Status:          p.Status,
		Action:          p.Action,
		PaymentIntentID: p.PaymentIntentID,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.CreatedAt,
		Lines:           p.Lines,
	}
}
