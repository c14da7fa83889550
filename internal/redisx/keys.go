package redisx

import "time"

const (
	// Idempotent checkout: idem:checkout:{user_id}:{Idempotency-Key} -> "pending" | response body
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order read cache: order:{user_id}:{order_id} -> shop.Order JSON
	KeyOrder = "order:%s:%d"
	// order:ver:{user_id}:{order_id} -> updated_at (unix micro) of the newest snapshot seen
	KeyOrderVersion = "order:ver:%s:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	// lebih lama dari request timeout + payment timeout
	TTLIdempotencyPending = 2 * time.Minute
	TTLOrderCache         = 10 * time.Minute
	TTLOrderVersion       = 48 * time.Hour
	TTLDedup              = 48 * time.Hour
)
