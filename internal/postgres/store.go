// Package postgres is the PostgreSQL implementation of the checkout store. Row locks are
// SELECT ... FOR UPDATE locks held until commit; lock waits are bounded with lock_timeout.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/checkout"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	DB          *pgxpool.Pool
	LockTimeout time.Duration
}

var _ checkout.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{DB: db, LockTimeout: lockTimeout}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	// no-op after commit; runs on a detached context so a cancelled request still frees the connection
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if s.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.LockTimeout.Milliseconds())); err != nil {
			return classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

const orderColumns = `id, user_id, shipping_address, status, total_amount, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.ShippingAddress, &status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	o.Status = orders.Status(status)
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return orders.Order{}, classify(err)
	}
	list, err := attachItems(ctx, s.DB, []orders.Order{o})
	if err != nil {
		return orders.Order{}, err
	}
	return list[0], nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]orders.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id DESC`, userID)
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id DESC`)
}

func (s *Store) listOrders(ctx context.Context, sql string, args ...any) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return attachItems(ctx, s.DB, out)
}

// attachItems loads the items of every order in one query.
func attachItems(ctx context.Context, q querier, list []orders.Order) ([]orders.Order, error) {
	if len(list) == 0 {
		return list, nil
	}
	ids := make([]int64, len(list))
	idx := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		idx[o.ID] = i
	}
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity, item_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, product_id`, ids)
	if err != nil {
		return nil, classify(fmt.Errorf("load items: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.ItemPrice); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		i := idx[it.OrderID]
		list[i].Items = append(list[i].Items, it)
	}
	return list, classify(rows.Err())
}

func (s *Store) ListPayments(ctx context.Context) ([]orders.Payment, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, transaction_no, amount, method, status, created_at
		FROM payments ORDER BY id DESC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []orders.Payment
	for rows.Next() {
		var p orders.Payment
		var status string
		if err := rows.Scan(&p.ID, &p.OrderID, &p.TransactionNo, &p.Amount, &p.Method, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Status = orders.PaymentStatus(status)
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

func (s *Store) CartLines(ctx context.Context, userID int64) ([]orders.CartLine, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT c.product_id, p.name, c.quantity, p.price
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.product_id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []orders.CartLine
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Quantity, &l.Price); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		out = append(out, l)
	}
	return out, classify(rows.Err())
}

// FetchPending returns unsent outbox records in insertion order.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]orders.OutboxRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, event_id::text, topic, key, payload, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []orders.OutboxRecord
	for rows.Next() {
		var r orders.OutboxRecord
		if err := rows.Scan(&r.ID, &r.EventID, &r.Topic, &r.Key, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = ANY($1) AND sent_at IS NULL`, ids)
	return classify(err)
}
