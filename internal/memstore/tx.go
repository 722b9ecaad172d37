package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type tx struct {
	s      *Store
	held   map[lockKey]*rowLock
	undo   []func()
	outbox []orders.OutboxRecord
}

func (t *tx) lock(ctx context.Context, k lockKey) error {
	if _, ok := t.held[k]; ok {
		return nil
	}
	l, err := t.s.acquireLock(ctx, k)
	if err != nil {
		return err
	}
	t.held[k] = l
	return nil
}

func (t *tx) release() {
	for k, l := range t.held {
		t.s.releaseLock(k, l)
		delete(t.held, k)
	}
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// write runs fn under the store mutex; fn returns the closure that reverts it.
func (t *tx) write(fn func() (func(), error)) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, err := fn()
	if err != nil {
		return err
	}
	if u != nil {
		t.undo = append(t.undo, u)
	}
	return nil
}

func (t *tx) LockProduct(ctx context.Context, productID int64) (orders.Product, error) {
	if err := t.lock(ctx, lockKey{lockProduct, productID}); err != nil {
		return orders.Product{}, err
	}
	return t.GetProduct(ctx, productID)
}

func (t *tx) GetProduct(_ context.Context, productID int64) (orders.Product, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[productID]
	if !ok {
		return orders.Product{}, fmt.Errorf("%w: id %d", orders.ErrProductNotFound, productID)
	}
	return p, nil
}

func (t *tx) AdjustStock(_ context.Context, productID int64, delta int) error {
	if _, ok := t.held[lockKey{lockProduct, productID}]; !ok {
		return fmt.Errorf("adjust stock of product %d without holding its lock", productID)
	}
	return t.write(func() (func(), error) {
		p, ok := t.s.products[productID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", orders.ErrProductNotFound, productID)
		}
		if p.Stock+delta < 0 {
			return nil, &orders.StockError{ProductID: productID, Required: -delta, Available: p.Stock}
		}
		p.Stock += delta
		p.UpdatedAt = time.Now().UTC()
		t.s.products[productID] = p
		return func() {
			cur := t.s.products[productID]
			cur.Stock -= delta
			t.s.products[productID] = cur
		}, nil
	})
}

func (t *tx) InsertOrder(ctx context.Context, o *orders.Order) error {
	t.s.mu.Lock()
	t.s.nextOrder++
	id := t.s.nextOrder
	t.s.mu.Unlock()

	// The new row stays locked until the unit of work ends, like an uncommitted insert.
	if err := t.lock(ctx, lockKey{lockOrder, id}); err != nil {
		return err
	}
	return t.write(func() (func(), error) {
		now := time.Now().UTC()
		o.ID = id
		o.CreatedAt = now
		o.UpdatedAt = now
		row := *o
		row.Items = nil
		t.s.orders[id] = row
		return func() {
			delete(t.s.orders, id)
			delete(t.s.items, id)
		}, nil
	})
}

func (t *tx) InsertOrderItem(_ context.Context, it orders.OrderItem) error {
	return t.write(func() (func(), error) {
		if _, ok := t.s.orders[it.OrderID]; !ok {
			return nil, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, it.OrderID)
		}
		for _, existing := range t.s.items[it.OrderID] {
			if existing.ProductID == it.ProductID {
				return nil, fmt.Errorf("order item (%d, %d) already exists", it.OrderID, it.ProductID)
			}
		}
		prev := t.s.items[it.OrderID]
		t.s.items[it.OrderID] = append(append([]orders.OrderItem(nil), prev...), it)
		return func() { t.s.items[it.OrderID] = prev }, nil
	})
}

func (t *tx) SetOrderTotal(_ context.Context, orderID int64, total decimal.Decimal) error {
	return t.updateOrder(orderID, func(o *orders.Order) { o.TotalAmount = total })
}

func (t *tx) UpdateOrderStatus(_ context.Context, orderID int64, status orders.Status) error {
	return t.updateOrder(orderID, func(o *orders.Order) { o.Status = status })
}

func (t *tx) updateOrder(orderID int64, mutate func(*orders.Order)) error {
	return t.write(func() (func(), error) {
		o, ok := t.s.orders[orderID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, orderID)
		}
		prev := o
		mutate(&o)
		o.UpdatedAt = time.Now().UTC()
		t.s.orders[orderID] = o
		return func() { t.s.orders[orderID] = prev }, nil
	})
}

func (t *tx) LockOrder(ctx context.Context, orderID int64) (orders.Order, error) {
	if err := t.lock(ctx, lockKey{lockOrder, orderID}); err != nil {
		return orders.Order{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[orderID]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, orderID)
	}
	return t.s.withItemsLocked(o), nil
}

func (t *tx) LockCart(ctx context.Context, userID int64) ([]orders.CartEntry, error) {
	if err := t.lock(ctx, lockKey{lockCart, userID}); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.cartEntriesLocked(userID), nil
}

func (t *tx) IncrementCart(ctx context.Context, userID, productID int64, delta int) (int, error) {
	if err := t.lock(ctx, lockKey{lockCart, userID}); err != nil {
		return 0, err
	}
	var qty int
	err := t.write(func() (func(), error) {
		cart := t.s.carts[userID]
		if cart == nil {
			cart = map[int64]int{}
			t.s.carts[userID] = cart
		}
		prev, existed := cart[productID]
		qty = prev + delta
		cart[productID] = qty
		return func() {
			if existed {
				t.s.carts[userID][productID] = prev
			} else {
				delete(t.s.carts[userID], productID)
			}
		}, nil
	})
	return qty, err
}

func (t *tx) DeleteCartEntries(ctx context.Context, userID int64, productIDs []int64) error {
	if err := t.lock(ctx, lockKey{lockCart, userID}); err != nil {
		return err
	}
	return t.write(func() (func(), error) {
		removed := map[int64]int{}
		for _, pid := range productIDs {
			if qty, ok := t.s.carts[userID][pid]; ok {
				removed[pid] = qty
				delete(t.s.carts[userID], pid)
			}
		}
		return restoreCart(t.s, userID, removed), nil
	})
}

func (t *tx) ClearCart(ctx context.Context, userID int64) error {
	if err := t.lock(ctx, lockKey{lockCart, userID}); err != nil {
		return err
	}
	return t.write(func() (func(), error) {
		removed := t.s.carts[userID]
		delete(t.s.carts, userID)
		return restoreCart(t.s, userID, removed), nil
	})
}

func restoreCart(s *Store, userID int64, removed map[int64]int) func() {
	return func() {
		if len(removed) == 0 {
			return
		}
		if s.carts[userID] == nil {
			s.carts[userID] = map[int64]int{}
		}
		for pid, qty := range removed {
			s.carts[userID][pid] = qty
		}
	}
}

func (t *tx) InsertPayment(_ context.Context, p *orders.Payment) error {
	return t.write(func() (func(), error) {
		if _, ok := t.s.orders[p.OrderID]; !ok {
			return nil, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, p.OrderID)
		}
		if _, dup := t.s.txNos[p.TransactionNo]; dup {
			return nil, fmt.Errorf("%w: transaction number %q already recorded", orders.ErrDuplicateTransaction, p.TransactionNo)
		}
		t.s.nextPayment++
		p.ID = t.s.nextPayment
		p.CreatedAt = time.Now().UTC()
		t.s.payments[p.ID] = *p
		t.s.txNos[p.TransactionNo] = p.ID
		id, txNo := p.ID, p.TransactionNo
		return func() {
			delete(t.s.payments, id)
			delete(t.s.txNos, txNo)
		}, nil
	})
}

func (t *tx) PaidAmount(_ context.Context, orderID int64) (decimal.Decimal, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sum := decimal.Zero
	for _, p := range t.s.payments {
		if p.OrderID == orderID && p.Status.CountsTowardTotal() {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

// AppendOutbox buffers the record; it becomes visible to the relay only on commit.
func (t *tx) AppendOutbox(_ context.Context, rec orders.OutboxRecord) error {
	t.outbox = append(t.outbox, rec)
	return nil
}

// flushOutbox runs at commit.
func (t *tx) flushOutbox() {
	if len(t.outbox) == 0 {
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	now := time.Now().UTC()
	for _, rec := range t.outbox {
		t.s.nextOutbox++
		rec.ID = t.s.nextOutbox
		rec.CreatedAt = now
		t.s.outbox = append(t.s.outbox, rec)
	}
	t.outbox = nil
}
