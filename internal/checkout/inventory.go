package checkout

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

// MaxQuantity bounds one order line and one cart entry; quantities are INTEGER columns.
const MaxQuantity = math.MaxInt32

// normalizeLines validates requested lines, merges repeated products and sorts the result
// by product id ascending. Every call site that locks product rows goes through this
// ordering, so two units of work never wait on each other's products in opposite order.
func normalizeLines(lines []orders.LineItem) ([]orders.LineItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", orders.ErrValidation)
	}
	merged := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 {
			return nil, fmt.Errorf("%w: invalid product id %d", orders.ErrValidation, l.ProductID)
		}
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: invalid quantity %d for product %d", orders.ErrValidation, l.Quantity, l.ProductID)
		}
		if merged[l.ProductID] > MaxQuantity-l.Quantity {
			return nil, fmt.Errorf("%w: total quantity for product %d exceeds %d", orders.ErrValidation, l.ProductID, MaxQuantity)
		}
		merged[l.ProductID] += l.Quantity
	}
	out := make([]orders.LineItem, 0, len(merged))
	for id, qty := range merged {
		out = append(out, orders.LineItem{ProductID: id, Quantity: qty})
	}
	sortLines(out)
	return out, nil
}

func sortLines(lines []orders.LineItem) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
}

// reserve locks the product row, checks availability and decrements stock, returning the
// price to freeze into the order line. The decrement is final for this unit of work; only
// a rollback undoes it.
func reserve(ctx context.Context, tx Tx, line orders.LineItem) (decimal.Decimal, error) {
	p, err := tx.LockProduct(ctx, line.ProductID)
	if err != nil {
		return decimal.Zero, err
	}
	available := p.Stock
	if !p.Active {
		available = 0
	}
	if line.Quantity > available {
		return decimal.Zero, &orders.StockError{ProductID: p.ID, Required: line.Quantity, Available: available}
	}
	if err := tx.AdjustStock(ctx, p.ID, -line.Quantity); err != nil {
		return decimal.Zero, fmt.Errorf("decrement stock for product %d: %w", p.ID, err)
	}
	return p.Price, nil
}

// restock credits the ledger back for every item of a cancelled order, locking products
// in ascending id order.
func restock(ctx context.Context, tx Tx, items []orders.OrderItem) ([]orders.LineItem, error) {
	lines := make([]orders.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, orders.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	sortLines(lines)
	for _, l := range lines {
		if _, err := tx.LockProduct(ctx, l.ProductID); err != nil {
			return nil, err
		}
		if err := tx.AdjustStock(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, fmt.Errorf("restock product %d: %w", l.ProductID, err)
		}
	}
	return lines, nil
}
