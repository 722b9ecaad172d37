package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartEntry is one pending (user, product) quantity. Quantity is always positive.
type CartEntry struct {
	UserID    int64
	ProductID int64
	Quantity  int
}

type Order struct {
	ID              int64
	UserID          int64
	ShippingAddress string
	Status          Status // lihat status.go
	TotalAmount     decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Items           []OrderItem
}

// OrderItem freezes the product price at placement time.
type OrderItem struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	ItemPrice decimal.Decimal
}

// Subtotal = ItemPrice * Quantity.
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.ItemPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Payment struct {
	ID            int64
	OrderID       int64
	TransactionNo string
	Amount        decimal.Decimal
	Method        string
	Status        PaymentStatus
	CreatedAt     time.Time
}

// LineItem is a requested (product, quantity) pair before reservation.
type LineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CartLine is a cart entry joined with the live product price.
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OutboxRecord is a domain event waiting to be relayed to the broker.
type OutboxRecord struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}
