// Package payment holds the outbound adapter to the payment gateway. The
// gateway itself is an external collaborator: it takes an order, returns an
// opaque payment reference plus a client secret, and later confirms the
// reference through the webhook.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
)

type Provider interface {
	CreatePayment(ctx context.Context, o *orders.Order) (paymentRef, clientSecret string, err error)
}

// Mock issues pay_<hex> references locally. Confirmation comes back through
// the mock-payments webhook.
type Mock struct{}

func (Mock) CreatePayment(ctx context.Context, o *orders.Order) (string, string, error) {
	ref, err := token(8)
	if err != nil {
		return "", "", err
	}
	secret, err := token(16)
	if err != nil {
		return "", "", err
	}
	return "pay_" + ref, secret, nil
}

func token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
