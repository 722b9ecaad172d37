// Package outbox relays committed domain events from the outbox table to the broker.
// Delivery is at least once: a record is marked sent only after the publisher returned,
// so a crash in between republishes it and consumers dedup by event id.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

type Source interface {
	FetchPending(ctx context.Context, limit int) ([]orders.OutboxRecord, error)
	MarkSent(ctx context.Context, ids []int64) error
}

type Publisher interface {
	Publish(ctx context.Context, recs []orders.OutboxRecord) error
}

type Relay struct {
	Source    Source
	Publisher Publisher
	Interval  time.Duration
	Batch     int
	Logger    *slog.Logger
	Metrics   *metrics.Relay
}

// Run polls until ctx ends. Errors are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	log := r.Logger
	if log == nil {
		log = obs.Discard()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		// drain full batches back to back, then wait
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("outbox_relay_failed", "error", err)
				}
				break
			}
			if n < r.batch() {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *Relay) batch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}

// Flush runs one relay round and returns how many records were published.
func (r *Relay) Flush(ctx context.Context) (n int, err error) {
	var fetched int
	defer func() { r.Metrics.Round(fetched, n, err) }()

	recs, err := r.Source.FetchPending(ctx, r.batch())
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}
	fetched = len(recs)
	if fetched == 0 {
		return 0, nil
	}
	if err := r.Publisher.Publish(ctx, recs); err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	if err := r.Source.MarkSent(ctx, ids); err != nil {
		// already published; the next round republishes them
		return len(recs), fmt.Errorf("mark sent: %w", err)
	}
	return len(recs), nil
}
