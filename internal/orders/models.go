package orders

import "time"

// Order is immutable after checkout commits, except through state
// transitions (and the one-time payment reference assignment).
type Order struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Status     Status     `json:"status"`
	TotalCents int        `json:"total_cents"`
	Currency   string     `json:"currency"`
	PaymentRef *string    `json:"payment_ref,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	Items      []OrderItem `json:"items"`
}

// OrderItem freezes sku, name and unit price at purchase time. The
// snapshots are the audit record of what was sold and never change, even
// when the product does.
type OrderItem struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	ProductID    string `json:"product_id"`
	SKUSnapshot  string `json:"sku_snapshot"`
	NameSnapshot string `json:"name_snapshot"`
	PriceCents   int    `json:"price_cents"`
	Qty          int    `json:"qty"`
}
