package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		name        VARCHAR(200) NOT NULL,
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock       INTEGER NOT NULL DEFAULT 0 CONSTRAINT products_stock_non_negative CHECK (stock >= 0),
		is_active   BOOLEAN NOT NULL DEFAULT true,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id               BIGSERIAL PRIMARY KEY,
		user_id          BIGINT NOT NULL,
		shipping_address VARCHAR(255) NOT NULL,
		status           VARCHAR(50) NOT NULL DEFAULT 'Pending',
		total_amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, id DESC)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		item_price NUMERIC(12,2) NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS cart_items (
		user_id    BIGINT NOT NULL,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id             BIGSERIAL PRIMARY KEY,
		order_id       BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		transaction_no VARCHAR(100) NOT NULL CONSTRAINT payments_transaction_no_key UNIQUE,
		amount         NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		method         VARCHAR(50) NOT NULL,
		status         VARCHAR(50) NOT NULL DEFAULT 'Pending',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id         BIGSERIAL PRIMARY KEY,
		event_id   UUID NOT NULL UNIQUE,
		topic      TEXT NOT NULL,
		key        TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(id) WHERE sent_at IS NULL`,
}

// Migrate creates the engine's tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}
