package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type pgTx struct {
	tx pgx.Tx
}

const productColumns = `id, name, price, stock, is_active, created_at, updated_at`

func scanProduct(row pgx.Row, productID int64) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("%w: id %d", orders.ErrProductNotFound, productID)
	}
	if err != nil {
		return orders.Product{}, classify(fmt.Errorf("load product %d: %w", productID, err))
	}
	return p, nil
}

func (t *pgTx) LockProduct(ctx context.Context, productID int64) (orders.Product, error) {
	return scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID), productID)
}

func (t *pgTx) GetProduct(ctx context.Context, productID int64) (orders.Product, error) {
	return scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID), productID)
}

// AdjustStock relies on the products_stock_non_negative check as a backstop; callers
// compare against the locked stock first.
func (t *pgTx) AdjustStock(ctx context.Context, productID int64, delta int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, productID, delta)
	if err != nil {
		return classify(fmt.Errorf("adjust stock of product %d: %w", productID, err))
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: id %d", orders.ErrProductNotFound, productID)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, shipping_address, status, total_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.ShippingAddress, string(o.Status), o.TotalAmount,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert order: %w", err))
	}
	return nil
}

func (t *pgTx) InsertOrderItem(ctx context.Context, it orders.OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, item_price)
		VALUES ($1, $2, $3, $4)`,
		it.OrderID, it.ProductID, it.Quantity, it.ItemPrice)
	if err != nil {
		return classify(fmt.Errorf("insert order item (%d, %d): %w", it.OrderID, it.ProductID, err))
	}
	return nil
}

func (t *pgTx) SetOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	return t.updateOrder(ctx, `UPDATE orders SET total_amount = $2, updated_at = now() WHERE id = $1`, orderID, total)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status) error {
	return t.updateOrder(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, string(status))
}

func (t *pgTx) updateOrder(ctx context.Context, sql string, orderID int64, arg any) error {
	tag, err := t.tx.Exec(ctx, sql, orderID, arg)
	if err != nil {
		return classify(fmt.Errorf("update order %d: %w", orderID, err))
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, orderID)
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID int64) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: id %d", orders.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return orders.Order{}, classify(fmt.Errorf("lock order %d: %w", orderID, err))
	}
	list, err := attachItems(ctx, t.tx, []orders.Order{o})
	if err != nil {
		return orders.Order{}, err
	}
	return list[0], nil
}

// LockCart locks the rows that exist. Concurrent adds of new products are not blocked,
// which is why the checkout deletes exactly the product ids it consumed.
func (t *pgTx) LockCart(ctx context.Context, userID int64) ([]orders.CartEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT user_id, product_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY product_id
		FOR UPDATE`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("lock cart: %w", err))
	}
	defer rows.Close()
	var out []orders.CartEntry
	for rows.Next() {
		var e orders.CartEntry
		if err := rows.Scan(&e.UserID, &e.ProductID, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart entry: %w", err)
		}
		out = append(out, e)
	}
	return out, classify(rows.Err())
}

func (t *pgTx) IncrementCart(ctx context.Context, userID, productID int64, delta int) (int, error) {
	var qty int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING quantity`, userID, productID, delta).Scan(&qty)
	if err != nil {
		return 0, classify(fmt.Errorf("increment cart: %w", err))
	}
	return qty, nil
}

func (t *pgTx) DeleteCartEntries(ctx context.Context, userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs)
	return classify(err)
}

func (t *pgTx) ClearCart(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return classify(err)
}

func (t *pgTx) InsertPayment(ctx context.Context, p *orders.Payment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (order_id, transaction_no, amount, method, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.OrderID, p.TransactionNo, p.Amount, p.Method, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert payment: %w", err))
	}
	return nil
}

func (t *pgTx) PaidAmount(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE order_id = $1 AND status = ANY($2)`,
		orderID, []string{string(orders.PaymentPending), string(orders.PaymentPaid)},
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, classify(fmt.Errorf("sum payments: %w", err))
	}
	return sum, nil
}

func (t *pgTx) AppendOutbox(ctx context.Context, rec orders.OutboxRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (event_id, topic, key, payload)
		VALUES ($1, $2, $3, $4)`,
		rec.EventID, rec.Topic, rec.Key, rec.Payload)
	if err != nil {
		return classify(fmt.Errorf("append outbox: %w", err))
	}
	return nil
}
