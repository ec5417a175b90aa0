package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-shop-backend.git/internal/kafka"
)

// PaymentProvider is the outbound gateway adapter: it takes the committed
// order and returns the external payment reference plus a client secret.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, o *Order) (paymentRef, clientSecret string, err error)
}

// EventSink is satisfied by the kafka producer. Nil sinks are skipped.
type EventSink interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service is the order lifecycle engine: checkout, payment confirmation and
// administrative transitions. Transactional guarantees live in the Store;
// the service adds the gateway call, event publication and logging.
type Service struct {
	Store          Store
	Payments       PaymentProvider
	PlacedEvents   EventSink
	PaidEvents     EventSink
	StatusEvents   EventSink
	ServiceName    string
	PaymentTimeout time.Duration

	now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) paymentTimeout() time.Duration {
	if s.PaymentTimeout > 0 {
		return s.PaymentTimeout
	}
	return 5 * time.Second
}

// Checkout converts the user's draft cart into a pending order and obtains
// a payment reference for it. The conversion itself is all-or-nothing; a
// gateway failure after the commit leaves the order pending with no
// reference, and the caller gets an error.
func (s *Service) Checkout(ctx context.Context, userID, cartID string) (*Order, string, string, error) {
	o, err := s.Store.Checkout(ctx, userID, cartID)
	if err != nil {
		return nil, "", "", err
	}
	slog.Info("order placed", "order_id", o.ID, "user_id", userID, "total_cents", o.TotalCents)

	pctx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
	defer cancel()
	ref, secret, err := s.Payments.CreatePayment(pctx, o)
	if err != nil {
		// The cart is spent and the order stays pending with a null
		// payment ref; recovery is an admin concern.
		slog.Error("payment gateway call failed", "order_id", o.ID, "err", err)
		return nil, "", "", fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	if err := s.Store.SetPaymentRef(ctx, o.ID, ref); err != nil {
		return nil, "", "", err
	}
	o.PaymentRef = &ref

	s.publish(s.PlacedEvents, EventOrderPlaced, o.ID, OrderPlacedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		Items:      placedItems(o.Items),
	})
	return o, ref, secret, nil
}

// ConfirmPayment is the idempotent payment notification handler; the
// payment reference is its idempotency key. Any number of deliveries
// converges on exactly one paid transition with one timestamp.
func (s *Service) ConfirmPayment(ctx context.Context, paymentRef string) (*Order, error) {
	o, changed, err := s.Store.MarkPaid(ctx, paymentRef, s.clock().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		if o.Status == StatusCancelled {
			// money arrived for a cancelled order; the cancel stands
			slog.Warn("payment confirmation for cancelled order", "order_id", o.ID, "payment_ref", paymentRef)
		}
		return o, nil
	}

	slog.Info("order paid", "order_id", o.ID, "payment_ref", paymentRef)
	s.publish(s.PaidEvents, EventOrderPaid, o.ID, OrderPaidPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		PaymentRef: paymentRef,
		TotalCents: o.TotalCents,
		PaidAt:     *o.PaidAt,
	})
	return o, nil
}

// Transition applies an administrative status change, subject to the
// transition table. A transition to paid goes through the same stamp-once
// logic as ConfirmPayment.
func (s *Service) Transition(ctx context.Context, orderID string, target Status) (*Order, error) {
	o, prev, err := s.Store.Transition(ctx, orderID, target, s.clock().UTC())
	if err != nil {
		return nil, err
	}
	if prev == o.Status {
		return o, nil
	}

	slog.Info("order status changed", "order_id", o.ID, "from", prev, "to", o.Status)
	s.publish(s.StatusEvents, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID,
		From:    prev,
		To:      o.Status,
	})
	if o.Status == StatusPaid && o.PaymentRef != nil {
		s.publish(s.PaidEvents, EventOrderPaid, o.ID, OrderPaidPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			PaymentRef: *o.PaymentRef,
			TotalCents: o.TotalCents,
			PaidAt:     *o.PaidAt,
		})
	}
	return o, nil
}

// Get returns the order only when it belongs to the requesting user;
// otherwise callers see the same not-found as for an unknown id.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*Order, error) {
	return s.Store.GetForUser(ctx, orderID, userID)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.Store.List(ctx, f)
}

func (s *Service) publish(sink EventSink, eventType, orderID string, payload any) {
	if sink == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	sink.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func placedItems(items []OrderItem) []PlacedItem {
	out := make([]PlacedItem, 0, len(items))
	for _, it := range items {
		out = append(out, PlacedItem{
			ProductID:  it.ProductID,
			SKU:        it.SKUSnapshot,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}
	return out
}
