package projector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	m      map[int64]redisx.CachedStatus
	setErr error
}

func (c *memCache) Get(_ context.Context, id int64) (redisx.CachedStatus, bool, error) {
	st, ok := c.m[id]
	return st, ok, nil
}

func (c *memCache) Set(_ context.Context, st redisx.CachedStatus) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.m[st.OrderID] = st
	return nil
}

type memDedup map[string]bool

func (d memDedup) Claim(_ context.Context, id string) (bool, error) {
	if d[id] {
		return false, nil
	}
	d[id] = true
	return true, nil
}

func (d memDedup) Forget(_ context.Context, id string) error {
	delete(d, id)
	return nil
}

func newService() (*Service, *memCache, memDedup) {
	c := &memCache{m: map[int64]redisx.CachedStatus{}}
	d := memDedup{}
	return &Service{Cache: c, Dedup: d, Logger: obs.Discard()}, c, d
}

func message(t *testing.T, eventType string, orderID int64, payload any, at time.Time) (kafkago.Message, orders.Envelope) {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "order-api", "", orderID, payload)
	require.NoError(t, err)
	env.OccurredAt = at
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: orders.TopicFor(eventType), Value: b}, env
}

func TestProjectsStatusChanges(t *testing.T) {
	s, cache, _ := newService()
	ctx := context.Background()
	t0 := time.Now().UTC()

	m, _ := message(t, orders.EventOrderPlaced, 5, orders.OrderPlacedPayload{OrderID: 5, UserID: 11, Status: orders.StatusPending}, t0)
	require.NoError(t, s.HandleMessage(ctx, m))
	assert.Equal(t, orders.StatusPending, cache.m[5].Status)
	assert.Equal(t, int64(11), cache.m[5].UserID)

	m, _ = message(t, orders.EventOrderStatusChanged, 5,
		orders.OrderStatusChangedPayload{OrderID: 5, From: orders.StatusPending, To: orders.StatusShipped}, t0.Add(time.Second))
	require.NoError(t, s.HandleMessage(ctx, m))
	assert.Equal(t, orders.StatusShipped, cache.m[5].Status)
	assert.Equal(t, int64(11), cache.m[5].UserID, "owner carried over from the cached entry")
}

func TestOlderEventDoesNotOverwrite(t *testing.T) {
	s, cache, _ := newService()
	ctx := context.Background()
	t0 := time.Now().UTC()

	m, _ := message(t, orders.EventOrderCancelled, 8, orders.OrderCancelledPayload{OrderID: 8}, t0.Add(time.Second))
	require.NoError(t, s.HandleMessage(ctx, m))
	m, _ = message(t, orders.EventOrderPlaced, 8, orders.OrderPlacedPayload{OrderID: 8, Status: orders.StatusPending}, t0)
	require.NoError(t, s.HandleMessage(ctx, m))

	assert.Equal(t, orders.StatusCancelled, cache.m[8].Status)
}

func TestDuplicateDeliveryIsIgnored(t *testing.T) {
	s, cache, _ := newService()
	ctx := context.Background()

	m, _ := message(t, orders.EventOrderPlaced, 3, orders.OrderPlacedPayload{OrderID: 3, Status: orders.StatusPending}, time.Now().UTC())
	require.NoError(t, s.HandleMessage(ctx, m))
	delete(cache.m, 3)
	require.NoError(t, s.HandleMessage(ctx, m))
	_, ok := cache.m[3]
	assert.False(t, ok)
}

func TestFailedEventIsReleasedForRedelivery(t *testing.T) {
	s, cache, dedup := newService()
	cache.setErr = errors.New("redis down")
	ctx := context.Background()

	m, env := message(t, orders.EventOrderPlaced, 4, orders.OrderPlacedPayload{OrderID: 4, Status: orders.StatusPending}, time.Now().UTC())
	require.Error(t, s.HandleMessage(ctx, m))
	assert.False(t, dedup[env.EventID])

	cache.setErr = nil
	require.NoError(t, s.HandleMessage(ctx, m))
	assert.Equal(t, orders.StatusPending, cache.m[4].Status)
}

func TestIgnoresForeignAndBrokenMessages(t *testing.T) {
	s, cache, _ := newService()
	ctx := context.Background()

	m, _ := message(t, orders.EventPaymentRecorded, 2, orders.PaymentRecordedPayload{OrderID: 2}, time.Now().UTC())
	require.NoError(t, s.HandleMessage(ctx, m))
	require.NoError(t, s.HandleMessage(ctx, kafkago.Message{Value: []byte("garbage")}))
	assert.Empty(t, cache.m)
}
