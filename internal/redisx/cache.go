package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

// CachedStatus is the value stored under KeyOrderStatus.
type CachedStatus struct {
	OrderID   int64         `json:"order_id"`
	UserID    int64         `json:"user_id"` // owner, for authorizing cache hits
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache is a read-through cache; the database stays the source of truth.
type StatusCache struct {
	R *redis.Client
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (CachedStatus, bool, error) {
	b, err := c.R.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, fmt.Errorf("get status cache: %w", err)
	}
	var st CachedStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return CachedStatus{}, false, fmt.Errorf("decode status cache: %w", err)
	}
	return st, true, nil
}

func (c *StatusCache) Set(ctx context.Context, st CachedStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, OrderStatusKey(st.OrderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) Delete(ctx context.Context, orderID int64) error {
	return c.R.Del(ctx, OrderStatusKey(orderID)).Err()
}

// Idempotency maps a client-supplied Idempotency-Key to the order it created.
type Idempotency struct {
	R *redis.Client
}

func (i *Idempotency) Lookup(ctx context.Context, userID int64, key string) (int64, bool, error) {
	v, err := i.R.Get(ctx, IdemOrderCreateKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get idempotency key: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency key holds %q: %w", v, err)
	}
	return id, true, nil
}

// Remember stores the mapping unless the key is already taken; it reports whether it stored.
func (i *Idempotency) Remember(ctx context.Context, userID int64, key string, orderID int64) (bool, error) {
	return i.R.SetNX(ctx, IdemOrderCreateKey(userID, key), orderID, TTLIdempotency).Result()
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	R       *redis.Client
	Service string
}

// Claim reports true the first time eventID is seen.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.R.SetNX(ctx, DedupKey(d.Service, eventID), "1", TTLDedup).Result()
}

// Forget releases a claim so a failed event can be processed again on redelivery.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.R.Del(ctx, DedupKey(d.Service, eventID)).Err()
}
