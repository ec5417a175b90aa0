package redisx

import "time"

const (
	// Cached order status view: order_status:{order_id} -> {"status":"...","paid_at":"..."}
	KeyOrderStatus = "order_status:%s"

	// Fast-path short-circuit for repeated payment webhooks:
	// paid:{payment_ref} -> order_id. The database row is the source of truth.
	KeyPaymentConfirmed = "paid:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLConfirmed   = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
