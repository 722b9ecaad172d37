// Package projector keeps the order status cache in step with the order event stream.
package projector

import (
	"context"
	"log/slog"

	kafkax "github.com/ariefcatur/marketplace-orders/internal/kafka"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
)

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, st redisx.CachedStatus) error
}

type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Service struct {
	Cache  StatusCache
	Dedup  Deduper
	Logger *slog.Logger
}

// HandleMessage dipasang sebagai handler consumer. Undecodable messages are logged and
// acknowledged; they would fail the same way on every redelivery.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		s.Logger.Warn("event_skipped", "topic", m.Topic, "offset", m.Offset, "error", err)
		return nil
	}

	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		s.Logger.Debug("event_duplicate", "event_id", env.EventID, "event_type", env.EventType)
		return nil
	}
	if err := s.apply(ctx, env); err != nil {
		// release the claim so the consumer's retry is not taken for a duplicate
		_ = s.Dedup.Forget(ctx, env.EventID)
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	var orderID, userID int64
	var status orders.Status
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, userID, status = p.OrderID, p.UserID, p.Status
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, userID, status = p.OrderID, p.UserID, orders.StatusCancelled
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, status = p.OrderID, p.To
	default:
		return nil
	}

	// workers run concurrently, so an older event can arrive after a newer one
	cur, ok, err := s.Cache.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if ok && cur.UpdatedAt.After(env.OccurredAt) {
		return nil
	}
	if userID == 0 {
		userID = cur.UserID
	}
	st := redisx.CachedStatus{OrderID: orderID, UserID: userID, Status: status, UpdatedAt: env.OccurredAt}
	if err := s.Cache.Set(ctx, st); err != nil {
		return err
	}
	s.Logger.Info("status_projected", "order_id", orderID, "status", status, "event_id", env.EventID, "trace_id", env.TraceID)
	return nil
}
