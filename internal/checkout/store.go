package checkout

import (
	"context"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

// Store is the persistence boundary of the engine. Every mutating operation runs inside
// WithinTx; implementations must commit only when fn returns nil and must roll back on
// every other exit path, panics included.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, orderID int64) (orders.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]orders.Order, error)
	ListOrders(ctx context.Context) ([]orders.Order, error)
	ListPayments(ctx context.Context) ([]orders.Payment, error)
	CartLines(ctx context.Context, userID int64) ([]orders.CartLine, error)
}

// Tx is one unit of work. Row locks taken through it are held until the unit of work ends.
type Tx interface {
	// LockProduct takes an exclusive lock on the product row.
	// Returns orders.ErrProductNotFound when the row does not exist.
	LockProduct(ctx context.Context, productID int64) (orders.Product, error)
	// AdjustStock adds delta to a product's stock. The row must already be locked.
	AdjustStock(ctx context.Context, productID int64, delta int) error
	// GetProduct reads a product without locking it.
	GetProduct(ctx context.Context, productID int64) (orders.Product, error)

	InsertOrder(ctx context.Context, o *orders.Order) error
	InsertOrderItem(ctx context.Context, it orders.OrderItem) error
	SetOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	// LockOrder takes an exclusive lock on the order row and loads its items.
	LockOrder(ctx context.Context, orderID int64) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status) error

	// LockCart locks and returns the user's cart entries ordered by product id.
	LockCart(ctx context.Context, userID int64) ([]orders.CartEntry, error)
	// IncrementCart is an atomic insert-or-add; it returns the resulting quantity.
	IncrementCart(ctx context.Context, userID, productID int64, delta int) (int, error)
	DeleteCartEntries(ctx context.Context, userID int64, productIDs []int64) error
	ClearCart(ctx context.Context, userID int64) error

	// InsertPayment returns orders.ErrDuplicateTransaction when the transaction number is taken.
	InsertPayment(ctx context.Context, p *orders.Payment) error
	// PaidAmount sums the order's payments whose status counts toward the total.
	PaidAmount(ctx context.Context, orderID int64) (decimal.Decimal, error)

	AppendOutbox(ctx context.Context, rec orders.OutboxRecord) error
}
