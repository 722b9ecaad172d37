// Package memstore is an in-process implementation of the checkout store. It mirrors the
// Postgres store's locking contract (exclusive row locks held until the unit of work ends,
// lock waits bounded by LockTimeout) and undoes every write of a unit of work that does
// not commit. Non-locking reads may observe uncommitted writes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/checkout"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type Store struct {
	LockTimeout time.Duration

	mu          sync.Mutex
	locks       map[lockKey]*rowLock
	products    map[int64]orders.Product
	orders      map[int64]orders.Order
	items       map[int64][]orders.OrderItem
	carts       map[int64]map[int64]int
	payments    map[int64]orders.Payment
	txNos       map[string]int64
	outbox      []orders.OutboxRecord
	nextProduct int64
	nextOrder   int64
	nextPayment int64
	nextOutbox  int64
}

var _ checkout.Store = (*Store)(nil)

func New(lockTimeout time.Duration) *Store {
	return &Store{
		LockTimeout: lockTimeout,
		locks:       map[lockKey]*rowLock{},
		products:    map[int64]orders.Product{},
		orders:      map[int64]orders.Order{},
		items:       map[int64][]orders.OrderItem{},
		carts:       map[int64]map[int64]int{},
		payments:    map[int64]orders.Payment{},
		txNos:       map[string]int64{},
	}
}

// WithinTx runs fn as one unit of work. Writes are kept only when fn returns nil and the
// context is still live; locks are released on every path, panics included.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: begin: %v", orders.ErrBusy, err)
	}
	t := &tx{s: s, held: map[lockKey]*rowLock{}}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
		t.release()
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %v", orders.ErrBusy, err)
	}
	committed = true
	t.flushOutbox()
	return nil
}

// acquireLock waits for the row lock of k.
func (s *Store) acquireLock(ctx context.Context, k lockKey) (*rowLock, error) {
	s.mu.Lock()
	l, ok := s.locks[k]
	if !ok {
		l = newRowLock()
		s.locks[k] = l
	}
	l.refs++
	s.mu.Unlock()

	if err := l.acquire(ctx, s.LockTimeout); err != nil {
		s.unref(k, l)
		return nil, err
	}
	return l, nil
}

func (s *Store) releaseLock(k lockKey, l *rowLock) {
	l.release()
	s.unref(k, l)
}

func (s *Store) unref(k lockKey, l *rowLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(s.locks, k)
	}
}

func (s *Store) lockEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// PutProduct inserts or replaces a product; a zero ID allocates the next one.
func (s *Store) PutProduct(p orders.Product) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextProduct++
		p.ID = s.nextProduct
	} else if p.ID > s.nextProduct {
		s.nextProduct = p.ID
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p
}

// SetPrice changes a product's live price; existing order lines keep their snapshot.
func (s *Store) SetPrice(productID int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Price = price
		p.UpdatedAt = time.Now().UTC()
		s.products[productID] = p
	}
}

func (s *Store) Product(productID int64) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	return p, ok
}

func (s *Store) CartEntries(userID int64) []orders.CartEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartEntriesLocked(userID)
}

func (s *Store) cartEntriesLocked(userID int64) []orders.CartEntry {
	out := make([]orders.CartEntry, 0, len(s.carts[userID]))
	for pid, qty := range s.carts[userID] {
		out = append(out, orders.CartEntry{UserID: userID, ProductID: pid, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *Store) GetOrder(_ context.Context, orderID int64) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, orderID)
	}
	return s.withItemsLocked(o), nil
}

func (s *Store) withItemsLocked(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), s.items[o.ID]...)
	return o
}

func (s *Store) ListOrdersByUser(_ context.Context, userID int64) ([]orders.Order, error) {
	return s.listOrders(func(o orders.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListOrders(context.Context) ([]orders.Order, error) {
	return s.listOrders(func(orders.Order) bool { return true }), nil
}

func (s *Store) listOrders(keep func(orders.Order) bool) []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, s.withItemsLocked(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) ListPayments(context.Context) ([]orders.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) CartLines(_ context.Context, userID int64) ([]orders.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.CartLine
	for _, e := range s.cartEntriesLocked(userID) {
		p := s.products[e.ProductID]
		out = append(out, orders.CartLine{ProductID: e.ProductID, Name: p.Name, Quantity: e.Quantity, Price: p.Price})
	}
	return out, nil
}

// FetchPending returns unsent outbox records in insertion order.
func (s *Store) FetchPending(_ context.Context, limit int) ([]orders.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.OutboxRecord
	for _, r := range s.outbox {
		if r.SentAt != nil {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	now := time.Now().UTC()
	for i := range s.outbox {
		if want[s.outbox[i].ID] && s.outbox[i].SentAt == nil {
			s.outbox[i].SentAt = &now
		}
	}
	return nil
}

// Outbox returns a copy of every outbox record, sent or not.
func (s *Store) Outbox() []orders.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.OutboxRecord(nil), s.outbox...)
}
