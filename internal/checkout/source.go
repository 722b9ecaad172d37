package checkout

import (
	"context"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

// ItemSource supplies the lines of a checkout. Both sources feed the same unit of work.
type ItemSource interface {
	Name() string
	lines(ctx context.Context, tx Tx, userID int64) ([]orders.LineItem, error)
	consume(ctx context.Context, tx Tx, userID int64, lines []orders.LineItem) error
}

// ExplicitItems checks out exactly the given lines.
func ExplicitItems(items ...orders.LineItem) ItemSource { return explicitSource(items) }

// FromCart drains the user's cart. The cart rows are locked for the whole unit of work and
// deleted in the same commit as the order.
func FromCart() ItemSource { return cartSource{} }

type explicitSource []orders.LineItem

func (explicitSource) Name() string { return "explicit" }

func (s explicitSource) lines(context.Context, Tx, int64) ([]orders.LineItem, error) {
	return normalizeLines(s)
}

func (explicitSource) consume(context.Context, Tx, int64, []orders.LineItem) error { return nil }

type cartSource struct{}

func (cartSource) Name() string { return "cart" }

func (cartSource) lines(ctx context.Context, tx Tx, userID int64) ([]orders.LineItem, error) {
	entries, err := tx.LockCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, orders.ErrEmptyCart
	}
	lines := make([]orders.LineItem, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, orders.LineItem{ProductID: e.ProductID, Quantity: e.Quantity})
	}
	return normalizeLines(lines)
}

func (cartSource) consume(ctx context.Context, tx Tx, userID int64, lines []orders.LineItem) error {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return tx.DeleteCartEntries(ctx, userID, ids)
}
