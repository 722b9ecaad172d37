package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

// rowLock is an exclusive lock whose acquisition can be abandoned through a context,
// which a sync.Mutex cannot do. refs counts holders and waiters under Store.mu; the
// entry leaves Store.locks when it drops to zero.
type rowLock struct {
	ch   chan struct{}
	refs int
}

func newRowLock() *rowLock { return &rowLock{ch: make(chan struct{}, 1)} }

func (l *rowLock) acquire(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: lock wait: %v", orders.ErrBusy, ctx.Err())
	}
}

func (l *rowLock) release() { <-l.ch }

type lockKind int

const (
	lockProduct lockKind = iota
	lockOrder
	lockCart
)

type lockKey struct {
	kind lockKind
	id   int64
}
