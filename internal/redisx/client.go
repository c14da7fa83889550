// Package redisx wraps go-redis for checkout idempotency, the order cache and
// consumer de-duplication.
package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

const pending = "pending"

// Idempotency remembers checkout responses by (user, client supplied key).
type Idempotency struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: TTLIdempotency, pendingTTL: TTLIdempotencyPending}
}

// Reservation is the state of a key after Reserve.
type Reservation struct {
	Acquired bool   // caller owns the key and must Complete or Release it
	InFlight bool   // another request holds the key
	Response []byte // stored response of a finished request
}

func idemKey(userID, key string) string {
	return fmt.Sprintf(KeyIdemCheckout, userID, key)
}

// Reserve claims key for userID. The pending marker expires after
// pendingTTL so a crashed request does not block retries for a whole day.
func (i *Idempotency) Reserve(ctx context.Context, userID, key string) (Reservation, error) {
	k := idemKey(userID, key)
	ok, err := i.rdb.SetNX(ctx, k, pending, i.pendingTTL).Result()
	if err != nil {
		return Reservation{}, err
	}
	if ok {
		return Reservation{Acquired: true}, nil
	}

	v, err := i.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// released between SETNX and GET; let the client retry
		return Reservation{InFlight: true}, nil
	}
	if err != nil {
		return Reservation{}, err
	}
	if string(v) == pending {
		return Reservation{InFlight: true}, nil
	}
	return Reservation{Response: v}, nil
}

// Complete stores the response served for key.
func (i *Idempotency) Complete(ctx context.Context, userID, key string, response []byte) error {
	return i.rdb.Set(ctx, idemKey(userID, key), response, i.ttl).Err()
}

// Release drops the key so a retry runs the checkout again.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.rdb.Del(ctx, idemKey(userID, key)).Err()
}

// OrderCache is a read-through cache of single orders. Every write carries
// the order's UpdatedAt; a snapshot older than one already written is
// dropped, even after the entry itself was invalidated or expired.
type OrderCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	verTTL time.Duration
}

func NewOrderCache(rdb redis.Cmdable) *OrderCache {
	return &OrderCache{rdb: rdb, ttl: TTLOrderCache, verTTL: TTLOrderVersion}
}

// KEYS: entry, version. ARGV: body, version, entry ttl ms, version ttl ms, nx.
var storeOrder = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
if ARGV[5] == '1' and redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[4])
return 1
`)

// Get reports false on a miss.
func (c *OrderCache) Get(ctx context.Context, userID string, orderID int64) (shop.Order, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrder, userID, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return shop.Order{}, false, nil
	}
	if err != nil {
		return shop.Order{}, false, err
	}
	var o shop.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return shop.Order{}, false, fmt.Errorf("decode cached order: %w", err)
	}
	return o, true, nil
}

// Set writes o unless a newer snapshot of it was already written.
func (c *OrderCache) Set(ctx context.Context, o shop.Order) error {
	_, err := c.store(ctx, o, false)
	return err
}

// Warm is Set that also leaves an existing entry alone. It reports whether o
// was written.
func (c *OrderCache) Warm(ctx context.Context, o shop.Order) (bool, error) {
	return c.store(ctx, o, true)
}

func (c *OrderCache) store(ctx context.Context, o shop.Order, nx bool) (bool, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return false, err
	}
	flag := "0"
	if nx {
		flag = "1"
	}
	keys := []string{fmt.Sprintf(KeyOrder, o.UserID, o.ID), fmt.Sprintf(KeyOrderVersion, o.UserID, o.ID)}
	n, err := storeOrder.Run(ctx, c.rdb, keys,
		b, o.UpdatedAt.UnixMicro(), c.ttl.Milliseconds(), c.verTTL.Milliseconds(), flag).Int()
	if err != nil {
		return false, fmt.Errorf("cache order %d: %w", o.ID, err)
	}
	return n == 1, nil
}

// Invalidate drops the entry; the version mark stays so stale snapshots are
// still refused.
func (c *OrderCache) Invalidate(ctx context.Context, userID string, orderID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrder, userID, orderID)).Err()
}

// Dedup marks event ids a consumer has already handled.
type Dedup struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service, ttl: TTLDedup}
}

// First returns true only for the first caller with this event id.
func (d *Dedup) First(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, eventID), 1, d.ttl).Result()
}

// Forget undoes First after a failed attempt so the retry is processed.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, eventID)).Err()
}
