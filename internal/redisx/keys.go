package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency create order: idem:order:create:{user_id}:{Idempotency-Key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%d:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemOrderCreateKey(userID int64, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, key)
}

func OrderStatusKey(orderID int64) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func DedupKey(service, eventID string) string { return fmt.Sprintf(KeyDedup, service, eventID) }
