package orders

import (
	"context"
	"time"
)

type ListFilter struct {
	// UserID scopes the listing to one user. Empty means all users (admin).
	UserID   string
	Status   Status
	Page     int
	PageSize int
}

func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// Store is the transactional contract the checkout engine and the state
// machine run on. Every method is atomic: it either commits all of its
// writes or none of them.
type Store interface {
	// Checkout converts the user's draft cart into a pending order:
	// validates ownership and non-emptiness, reserves stock per item,
	// snapshots prices, totals the order and flips the cart to ordered,
	// all in one transaction.
	Checkout(ctx context.Context, userID, cartID string) (*Order, error)

	// SetPaymentRef assigns the external payment reference, once.
	SetPaymentRef(ctx context.Context, orderID, ref string) error

	// MarkPaid applies the idempotent pending->paid transition for the
	// order identified by the payment reference. changed reports whether
	// this call performed the stamp; repeats and stale confirmations on
	// cancelled orders return the order unchanged.
	MarkPaid(ctx context.Context, paymentRef string, at time.Time) (o *Order, changed bool, err error)

	// Transition applies an administrative transition under the same row
	// guard as MarkPaid. A repeat of the current status is a successful
	// no-op (prev == o.Status), except re-cancelling. Cancelling returns
	// the order's quantities to stock. prev is the committed status the
	// transition was checked against.
	Transition(ctx context.Context, orderID string, target Status, at time.Time) (o *Order, prev Status, err error)

	Get(ctx context.Context, orderID string) (*Order, error)
	GetForUser(ctx context.Context, orderID, userID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
}
