package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore implements Store in memory for engine tests. A single mutex
// plays the role of the database row locks: every method is atomic with
// respect to every other, which is exactly the contract the pgx repo
// provides with its transactions.
type memStore struct {
	mu       sync.Mutex
	products map[string]*memProduct
	carts    map[string]*memCart
	orders   map[string]*Order
	byRef    map[string]string
}

type memProduct struct {
	sku, name, currency string
	price, stock        int
	active              bool
}

type memCart struct {
	userID string
	status string
	lines  []memLine
}

type memLine struct {
	productID string
	qty       int
}

func newMemStore() *memStore {
	return &memStore{
		products: map[string]*memProduct{},
		carts:    map[string]*memCart{},
		orders:   map[string]*Order{},
		byRef:    map[string]string{},
	}
}

func (m *memStore) addProduct(id, sku, name string, price, stock int, active bool) {
	m.products[id] = &memProduct{sku: sku, name: name, currency: "USD", price: price, stock: stock, active: active}
}

func (m *memStore) addCart(cartID, userID string, lines ...memLine) {
	m.carts[cartID] = &memCart{userID: userID, status: "draft", lines: lines}
}

func (m *memStore) stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].stock
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.PaymentRef != nil {
		ref := *o.PaymentRef
		c.PaymentRef = &ref
	}
	if o.PaidAt != nil {
		at := *o.PaidAt
		c.PaidAt = &at
	}
	return &c
}

func (m *memStore) Checkout(ctx context.Context, userID, cartID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[cartID]
	if !ok || c.userID != userID {
		return nil, ErrCartMismatch
	}
	if c.status != "draft" {
		return nil, fmt.Errorf("%w: cart already ordered", ErrCartMismatch)
	}
	if len(c.lines) == 0 {
		return nil, ErrEmptyCart
	}

	// validate every line before mutating anything, so a failure at line k
	// leaves lines 1..k-1 untouched, same as a rolled back transaction
	for _, l := range c.lines {
		p, ok := m.products[l.productID]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: l.productID, Reason: UnavailableNotFound, Required: l.qty}
		}
		if !p.active {
			return nil, &ProductUnavailableError{ProductID: l.productID, Reason: UnavailableInactive, Required: l.qty}
		}
		if p.stock < l.qty {
			return nil, &ProductUnavailableError{ProductID: l.productID, Reason: UnavailableOutOfStock, Required: l.qty, Available: p.stock}
		}
	}

	o := &Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusPending,
		Currency:  "USD",
		CreatedAt: time.Now().UTC(),
	}
	total := 0
	for _, l := range c.lines {
		p := m.products[l.productID]
		p.stock -= l.qty
		o.Items = append(o.Items, OrderItem{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			ProductID:    l.productID,
			SKUSnapshot:  p.sku,
			NameSnapshot: p.name,
			PriceCents:   p.price,
			Qty:          l.qty,
		})
		total += p.price * l.qty
	}
	o.TotalCents = total
	c.status = "ordered"
	m.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (m *memStore) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.PaymentRef != nil {
		return fmt.Errorf("order %s: payment ref already assigned or order missing", orderID)
	}
	o.PaymentRef = &ref
	m.byRef[ref] = orderID
	return nil
}

func (m *memStore) MarkPaid(ctx context.Context, paymentRef string, at time.Time) (*Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[paymentRef]
	if !ok {
		return nil, false, ErrOrderNotFound
	}
	o := m.orders[id]
	if o.Status != StatusPending {
		return cloneOrder(o), false, nil
	}
	o.Status = StatusPaid
	o.PaidAt = &at
	return cloneOrder(o), true, nil
}

func (m *memStore) Transition(ctx context.Context, orderID string, target Status, at time.Time) (*Order, Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, "", ErrOrderNotFound
	}
	prev := o.Status
	noop, err := PlanTransition(prev, target)
	if err != nil {
		return nil, "", err
	}
	if noop {
		return cloneOrder(o), prev, nil
	}
	if target == StatusPaid && o.PaidAt == nil {
		o.PaidAt = &at
	}
	if target == StatusCancelled {
		for _, it := range o.Items {
			if p, ok := m.products[it.ProductID]; ok {
				p.stock += it.Qty
			}
		}
	}
	o.Status = target
	return cloneOrder(o), prev, nil
}

func (m *memStore) Get(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Normalize()
	var all []Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		all = append(all, *cloneOrder(o))
	}
	return all, len(all), nil
}

var _ Store = (*memStore)(nil)
