package catalog

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("validation failed")

// ProductPatch carries a sparse set of changed fields for a product. Nil
// means "leave unchanged". SKU is not patchable; it identifies what was sold
// on historical order lines.
type ProductPatch struct {
	Name        *string `json:"name,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int    `json:"price_cents,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
}

// Apply merges the patch into a copy of p. It is the single place partial
// product updates go through.
func (pp ProductPatch) Apply(p Product) (Product, error) {
	if pp.Name != nil {
		if *pp.Name == "" {
			return Product{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		p.Name = *pp.Name
	}
	if pp.Slug != nil {
		if *pp.Slug == "" {
			return Product{}, fmt.Errorf("%w: slug must not be empty", ErrValidation)
		}
		p.Slug = *pp.Slug
	}
	if pp.Description != nil {
		p.Description = pp.Description
	}
	if pp.PriceCents != nil {
		if *pp.PriceCents < 0 {
			return Product{}, fmt.Errorf("%w: price_cents must be >= 0", ErrValidation)
		}
		p.PriceCents = *pp.PriceCents
	}
	if pp.Currency != nil {
		if len(*pp.Currency) != 3 {
			return Product{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
		}
		p.Currency = *pp.Currency
	}
	if pp.Stock != nil {
		if *pp.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must be >= 0", ErrValidation)
		}
		p.Stock = *pp.Stock
	}
	if pp.IsActive != nil {
		p.IsActive = *pp.IsActive
	}
	if pp.CategoryID != nil {
		if *pp.CategoryID == "" {
			p.CategoryID = nil
		} else {
			p.CategoryID = pp.CategoryID
		}
	}
	return p, nil
}
