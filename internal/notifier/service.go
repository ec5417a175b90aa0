// Package notifier reacts to payment-confirmed events: it refreshes the
// order-status cache and sends the order-confirmation email. It runs as a
// consumer so a slow mail server never blocks the webhook path.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shop-backend.git/internal/kafka"
	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
	"github.com/ariefcatur/go-shop-backend.git/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string

	// Email is skipped when SMTPAddr is empty.
	SMTPAddr string
	From     string
	To       string
	User     string
	Pass     string
}

// HandleOrderPaid is the consumer handler for the order.paid topic.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}

	// at-least-once delivery; drop repeats by event id
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafka.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		return err
	}

	s.refreshStatusCache(ctx, p)

	if s.SMTPAddr != "" {
		if err := s.sendConfirmation(p); err != nil {
			slog.Error("confirmation email failed", "order_id", p.OrderID, "err", err)
			// the event is already deduped; do not retry through kafka
		}
	}

	slog.Info("order paid notification handled", "order_id", p.OrderID, "payment_ref", p.PaymentRef)
	return nil
}

func (s *Service) refreshStatusCache(ctx context.Context, p orders.OrderPaidPayload) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
	b, _ := json.Marshal(map[string]any{
		"user_id": p.UserID,
		"status":  string(orders.StatusPaid),
		"paid_at": p.PaidAt,
	})
	_ = s.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (s *Service) sendConfirmation(p orders.OrderPaidPayload) error {
	subject := "Order confirmation"
	body := fmt.Sprintf("Payment received for order %s (%d cents). We are processing it now.", p.OrderID, p.TotalCents)
	msg := []byte("To: " + s.To + "\r\nSubject: " + subject + "\r\n\r\n" + body + "\r\n")

	var a smtp.Auth
	if s.User != "" {
		host, _, err := net.SplitHostPort(s.SMTPAddr)
		if err != nil {
			host = s.SMTPAddr
		}
		a = smtp.PlainAuth("", s.User, s.Pass, host)
	}
	return smtp.SendMail(s.SMTPAddr, a, s.From, []string{s.To}, msg)
}
