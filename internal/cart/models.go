package cart

import "time"

type Status string

const (
	StatusDraft   Status = "draft"
	StatusOrdered Status = "ordered"
)

// Cart is the caller's mutable draft. Once checkout flips it to ordered it
// is never mutated or reused; the next purchase starts a fresh draft.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Item struct {
	ID        string `json:"id"`
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}
