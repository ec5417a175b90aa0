package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/ariefcatur/go-shop-backend.git/internal/orders"
)

// Stripe creates a PaymentIntent per order. The intent id is the payment
// reference; the client secret goes back to the frontend to complete the
// payment.
type Stripe struct {
	api *client.API
}

func NewStripe(apiKey string) *Stripe {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Stripe{api: api}
}

func (s *Stripe) CreatePayment(ctx context.Context, o *orders.Order) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(int64(o.TotalCents)),
		Currency: stripe.String(o.Currency),
	}
	params.AddMetadata("order_id", o.ID)
	params.AddMetadata("user_id", o.UserID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create payment intent: %w", err)
	}
	return pi.ID, pi.ClientSecret, nil
}
