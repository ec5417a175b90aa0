package catalog

import "time"

type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	PriceCents  int       `json:"price_cents"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	IsActive    bool      `json:"is_active"`
	CategoryID  *string   `json:"category_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Category struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parent_id,omitempty"`
}

// CategoryNode is one node of the assembled category tree.
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}
