package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type fakeProvider struct{ n atomic.Int64 }

func (p *fakeProvider) CreatePayment(ctx context.Context, o *Order) (string, string, error) {
	n := p.n.Add(1)
	return fmt.Sprintf("pay_test_%d", n), fmt.Sprintf("secret_%d", n), nil
}

type failingProvider struct{}

func (failingProvider) CreatePayment(ctx context.Context, o *Order) (string, string, error) {
	return "", "", errors.New("gateway timeout")
}

// recordingSink counts published envelopes per event type.
type recordingSink struct {
	mu     sync.Mutex
	events []Envelope
}

func (s *recordingSink) Publish(key, value []byte, headers ...kafkago.Header) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.events = append(s.events, env)
	s.mu.Unlock()
}

func (s *recordingSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func newTestService(store *memStore) (*Service, *recordingSink) {
	sink := &recordingSink{}
	return &Service{
		Store:        store,
		Payments:     &fakeProvider{},
		PlacedEvents: sink,
		PaidEvents:   sink,
		StatusEvents: sink,
		ServiceName:  "test",
	}, sink
}

func TestCheckout_HappyPath(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addProduct("prod-b", "SKU-B", "Gadget", 300, 1, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 2}, memLine{"prod-b", 1})

	svc, sink := newTestService(store)

	o, ref, secret, err := svc.Checkout(context.Background(), "user-1", "cart-1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if o.TotalCents != 1300 {
		t.Errorf("total = %d, want 1300", o.TotalCents)
	}
	if o.Status != StatusPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
	if ref == "" || secret == "" {
		t.Error("expected non-empty payment ref and client secret")
	}
	if o.PaymentRef == nil || *o.PaymentRef != ref {
		t.Error("payment ref not persisted on order")
	}
	if got := store.stock("prod-a"); got != 8 {
		t.Errorf("stock(prod-a) = %d, want 8", got)
	}
	if got := store.stock("prod-b"); got != 0 {
		t.Errorf("stock(prod-b) = %d, want 0", got)
	}
	if store.carts["cart-1"].status != "ordered" {
		t.Error("cart not flipped to ordered")
	}
	if len(o.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(o.Items))
	}
	if o.Items[0].SKUSnapshot != "SKU-A" || o.Items[0].PriceCents != 500 {
		t.Errorf("first item snapshot wrong: %+v", o.Items[0])
	}
	if sink.count(EventOrderPlaced) != 1 {
		t.Errorf("placed events = %d, want 1", sink.count(EventOrderPlaced))
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	store := newMemStore()
	store.addCart("cart-1", "user-1")
	svc, _ := newTestService(store)

	_, _, _, err := svc.Checkout(context.Background(), "user-1", "cart-1")
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCheckout_CartMismatch(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)

	if _, _, _, err := svc.Checkout(context.Background(), "user-2", "cart-1"); !errors.Is(err, ErrCartMismatch) {
		t.Errorf("foreign cart: expected ErrCartMismatch, got %v", err)
	}
	if _, _, _, err := svc.Checkout(context.Background(), "user-1", "no-such-cart"); !errors.Is(err, ErrCartMismatch) {
		t.Errorf("unknown cart: expected ErrCartMismatch, got %v", err)
	}
}

func TestCheckout_CartNotReusable(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)

	if _, _, _, err := svc.Checkout(context.Background(), "user-1", "cart-1"); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	if _, _, _, err := svc.Checkout(context.Background(), "user-1", "cart-1"); !errors.Is(err, ErrCartMismatch) {
		t.Fatalf("second checkout: expected ErrCartMismatch, got %v", err)
	}
}

func TestCheckout_UnavailableProductRollsBack(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addProduct("prod-c", "SKU-C", "Gizmo", 200, 3, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 2}, memLine{"prod-c", 5})
	svc, sink := newTestService(store)

	_, _, _, err := svc.Checkout(context.Background(), "user-1", "cart-1")
	var unavailable *ProductUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ProductUnavailableError, got %v", err)
	}
	if unavailable.ProductID != "prod-c" || unavailable.Required != 5 || unavailable.Available != 3 {
		t.Errorf("error detail wrong: %+v", unavailable)
	}
	if got := store.stock("prod-a"); got != 10 {
		t.Errorf("stock(prod-a) = %d after failed checkout, want 10", got)
	}
	if len(store.orders) != 0 {
		t.Errorf("orders persisted from failed checkout: %d", len(store.orders))
	}
	if store.carts["cart-1"].status != "draft" {
		t.Error("cart consumed by failed checkout")
	}
	if got := sink.count(EventOrderPlaced); got != 0 {
		t.Errorf("placed events = %d, want 0", got)
	}
}

func TestCheckout_InactiveProduct(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, false)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)

	_, _, _, err := svc.Checkout(context.Background(), "user-1", "cart-1")
	var unavailable *ProductUnavailableError
	if !errors.As(err, &unavailable) || unavailable.Reason != UnavailableInactive {
		t.Fatalf("expected inactive ProductUnavailableError, got %v", err)
	}
}

func TestCheckout_GatewayFailureLeavesPendingOrder(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)
	svc.Payments = failingProvider{}

	_, _, _, err := svc.Checkout(context.Background(), "user-1", "cart-1")
	if !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected ErrPaymentGateway, got %v", err)
	}

	// the conversion committed: order pending with no ref, cart spent
	if len(store.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(store.orders))
	}
	for _, o := range store.orders {
		if o.Status != StatusPending {
			t.Errorf("status = %s, want pending", o.Status)
		}
		if o.PaymentRef != nil {
			t.Error("payment ref should be null after gateway failure")
		}
	}
	if store.carts["cart-1"].status != "ordered" {
		t.Error("cart should be spent even when the gateway fails")
	}
}

func checkoutOne(t *testing.T, svc *Service, store *memStore, user, cart string) (orderID, ref string) {
	t.Helper()
	o, ref, _, err := svc.Checkout(context.Background(), user, cart)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return o.ID, ref
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, sink := newTestService(store)

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	_, ref := checkoutOne(t, svc, store, "user-1", "cart-1")

	first, err := svc.ConfirmPayment(context.Background(), ref)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if first.Status != StatusPaid || first.PaidAt == nil || !first.PaidAt.Equal(t0) {
		t.Fatalf("first confirm: status=%s paid_at=%v", first.Status, first.PaidAt)
	}

	// a later duplicate delivery must not move the timestamp
	svc.now = func() time.Time { return t0.Add(time.Hour) }
	second, err := svc.ConfirmPayment(context.Background(), ref)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if second.Status != StatusPaid || !second.PaidAt.Equal(t0) {
		t.Fatalf("second confirm changed state: status=%s paid_at=%v", second.Status, second.PaidAt)
	}
	if got := sink.count(EventOrderPaid); got != 1 {
		t.Errorf("paid events = %d, want 1", got)
	}
}

func TestConfirmPayment_ConcurrentDeliveries(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, sink := newTestService(store)
	orderID, ref := checkoutOne(t, svc, store, "user-1", "cart-1")

	const deliveries = 16
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ConfirmPayment(context.Background(), ref); err != nil {
				t.Errorf("confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	o, err := svc.Store.Get(context.Background(), orderID)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != StatusPaid || o.PaidAt == nil {
		t.Fatalf("order not paid after %d deliveries", deliveries)
	}
	if got := sink.count(EventOrderPaid); got != 1 {
		t.Errorf("paid events = %d, want exactly 1", got)
	}
}

func TestConfirmPayment_UnknownRef(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	if _, err := svc.ConfirmPayment(context.Background(), "pay_nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestConfirmPayment_StaleConfirmOnCancelled(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, sink := newTestService(store)
	orderID, ref := checkoutOne(t, svc, store, "user-1", "cart-1")

	if _, err := svc.Transition(context.Background(), orderID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	o, err := svc.ConfirmPayment(context.Background(), ref)
	if err != nil {
		t.Fatalf("stale confirm: %v", err)
	}
	if o.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}
	if o.PaidAt != nil {
		t.Error("paid_at must stay unset on a cancelled order")
	}
	if got := sink.count(EventOrderPaid); got != 0 {
		t.Errorf("paid events = %d, want 0", got)
	}
}

func TestCheckout_ConcurrentStockRace(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 6})
	store.addCart("cart-2", "user-2", memLine{"prod-a", 6})
	svc, _ := newTestService(store)

	type result struct{ err error }
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, c := range []struct{ user, cart string }{{"user-1", "cart-1"}, {"user-2", "cart-2"}} {
		wg.Add(1)
		go func(user, cart string) {
			defer wg.Done()
			_, _, _, err := svc.Checkout(context.Background(), user, cart)
			results <- result{err}
		}(c.user, c.cart)
	}
	wg.Wait()
	close(results)

	var ok, unavailable int
	for r := range results {
		switch {
		case r.err == nil:
			ok++
		default:
			var pu *ProductUnavailableError
			if errors.As(r.err, &pu) {
				unavailable++
			} else {
				t.Errorf("unexpected error: %v", r.err)
			}
		}
	}
	if ok != 1 || unavailable != 1 {
		t.Fatalf("got %d successes and %d stock failures, want 1 and 1", ok, unavailable)
	}
	if got := store.stock("prod-a"); got != 4 {
		t.Errorf("final stock = %d, want 4", got)
	}
}

func TestStockConservation(t *testing.T) {
	store := newMemStore()
	const initial = 20
	store.addProduct("prod-a", "SKU-A", "Widget", 500, initial, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 3})
	store.addCart("cart-2", "user-2", memLine{"prod-a", 7})
	svc, _ := newTestService(store)

	checkoutOne(t, svc, store, "user-1", "cart-1")
	cancelledID, _ := checkoutOne(t, svc, store, "user-2", "cart-2")
	if _, err := svc.Transition(context.Background(), cancelledID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	reserved := 0
	for _, o := range store.orders {
		if o.Status == StatusCancelled {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == "prod-a" {
				reserved += it.Qty
			}
		}
	}
	if reserved+store.stock("prod-a") != initial {
		t.Fatalf("conservation violated: reserved=%d stock=%d initial=%d", reserved, store.stock("prod-a"), initial)
	}
}

func TestTransition_CancelRestoresStock(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 4})
	svc, _ := newTestService(store)
	orderID, _ := checkoutOne(t, svc, store, "user-1", "cart-1")

	if got := store.stock("prod-a"); got != 6 {
		t.Fatalf("stock after checkout = %d, want 6", got)
	}
	if _, err := svc.Transition(context.Background(), orderID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := store.stock("prod-a"); got != 10 {
		t.Errorf("stock after cancel = %d, want 10", got)
	}

	// cancelling twice is rejected and must not restock twice
	if _, err := svc.Transition(context.Background(), orderID, StatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-cancel: expected ErrInvalidTransition, got %v", err)
	}
	if got := store.stock("prod-a"); got != 10 {
		t.Errorf("stock after re-cancel = %d, want 10", got)
	}
}

func TestTransition_ShipPendingRejected(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)
	orderID, _ := checkoutOne(t, svc, store, "user-1", "cart-1")

	if _, err := svc.Transition(context.Background(), orderID, StatusShipped); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	o, _ := svc.Store.Get(context.Background(), orderID)
	if o.Status != StatusPending {
		t.Errorf("status changed by rejected transition: %s", o.Status)
	}
}

func TestTransition_AdminPaidStampsOnce(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, sink := newTestService(store)

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	orderID, _ := checkoutOne(t, svc, store, "user-1", "cart-1")

	o, err := svc.Transition(context.Background(), orderID, StatusPaid)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if o.Status != StatusPaid || o.PaidAt == nil || !o.PaidAt.Equal(t0) {
		t.Fatalf("admin paid transition: status=%s paid_at=%v", o.Status, o.PaidAt)
	}

	// repeat is a no-op, no second stamp, no second event
	svc.now = func() time.Time { return t0.Add(time.Hour) }
	o2, err := svc.Transition(context.Background(), orderID, StatusPaid)
	if err != nil {
		t.Fatalf("repeat transition: %v", err)
	}
	if !o2.PaidAt.Equal(t0) {
		t.Errorf("paid_at moved on repeat: %v", o2.PaidAt)
	}
	if got := sink.count(EventOrderStatusChanged); got != 1 {
		t.Errorf("status events = %d, want 1", got)
	}
}

func TestTransition_FullLifecycle(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)
	orderID, ref := checkoutOne(t, svc, store, "user-1", "cart-1")

	if _, err := svc.ConfirmPayment(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
	for _, target := range []Status{StatusShipped, StatusCompleted} {
		o, err := svc.Transition(context.Background(), orderID, target)
		if err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
		if o.Status != target {
			t.Fatalf("status = %s, want %s", o.Status, target)
		}
	}

	// terminal: nothing moves a completed order
	if _, err := svc.Transition(context.Background(), orderID, StatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel of completed order: expected ErrInvalidTransition, got %v", err)
	}
}

func TestGet_ForeignOrderHidden(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-a", "SKU-A", "Widget", 500, 10, true)
	store.addCart("cart-1", "user-1", memLine{"prod-a", 1})
	svc, _ := newTestService(store)
	orderID, _ := checkoutOne(t, svc, store, "user-1", "cart-1")

	if _, err := svc.Get(context.Background(), orderID, "user-2"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
	if _, err := svc.Get(context.Background(), orderID, "user-1"); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
}
