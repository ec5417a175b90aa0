package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCartMismatch      = errors.New("cart mismatch")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentGateway    = errors.New("payment gateway failure")
)

const (
	UnavailableNotFound   = "not_found"
	UnavailableInactive   = "inactive"
	UnavailableOutOfStock = "out_of_stock"
)

// ProductUnavailableError aborts a checkout: the product is missing,
// deactivated, or short on stock for the requested quantity.
type ProductUnavailableError struct {
	ProductID string
	Reason    string
	Required  int
	Available int
}

func (e *ProductUnavailableError) Error() string {
	if e.Reason == UnavailableOutOfStock {
		return fmt.Sprintf("product %s unavailable: need %d, have %d", e.ProductID, e.Required, e.Available)
	}
	return fmt.Sprintf("product %s unavailable: %s", e.ProductID, e.Reason)
}
