package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderPaid          = "OrderPaid"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type PlacedItem struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type OrderPlacedPayload struct {
	OrderID    string       `json:"order_id"`
	UserID     string       `json:"user_id"`
	TotalCents int          `json:"total_cents"`
	Currency   string       `json:"currency"`
	Items      []PlacedItem `json:"items"`
}

type OrderPaidPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	PaymentRef string    `json:"payment_ref"`
	TotalCents int       `json:"total_cents"`
	PaidAt     time.Time `json:"paid_at"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}
