package checkout

import (
	"context"
	"fmt"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

// CartView is the caller's cart priced at current product prices. Prices here are
// informational; the checkout snapshots prices under lock.
type CartView struct {
	Lines    []orders.CartLine `json:"lines"`
	Subtotal decimal.Decimal   `json:"subtotal"`
}

// AddToCart increments the (user, product) entry by delta, creating it when absent.
// The increment is a single atomic upsert, so two devices adding at once never lose units.
func (s *Service) AddToCart(ctx context.Context, actor Actor, productID int64, delta int) (int, error) {
	if err := actor.validate(); err != nil {
		return 0, err
	}
	if delta <= 0 || delta > MaxQuantity {
		return 0, fmt.Errorf("%w: quantity to add must be between 1 and %d", orders.ErrValidation, MaxQuantity)
	}
	var qty int
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !p.Active {
			return fmt.Errorf("%w: product %d is not available", orders.ErrProductNotFound, productID)
		}
		qty, err = tx.IncrementCart(ctx, actor.UserID, productID, delta)
		if err != nil {
			return err
		}
		if qty > MaxQuantity {
			return fmt.Errorf("%w: cart quantity for product %d exceeds %d", orders.ErrValidation, productID, MaxQuantity)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger().Debug("cart_incremented", "user_id", actor.UserID, "product_id", productID, "quantity", qty)
	return qty, nil
}

// RemoveFromCart deletes one entry. Removing an absent entry is not an error.
func (s *Service) RemoveFromCart(ctx context.Context, actor Actor, productID int64) error {
	if err := actor.validate(); err != nil {
		return err
	}
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteCartEntries(ctx, actor.UserID, []int64{productID})
	})
}

func (s *Service) ClearCart(ctx context.Context, actor Actor) error {
	if err := actor.validate(); err != nil {
		return err
	}
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClearCart(ctx, actor.UserID)
	})
}

func (s *Service) Cart(ctx context.Context, actor Actor) (CartView, error) {
	if err := actor.validate(); err != nil {
		return CartView{}, err
	}
	lines, err := s.Store.CartLines(ctx, actor.UserID)
	if err != nil {
		return CartView{}, err
	}
	v := CartView{Lines: lines, Subtotal: decimal.Zero}
	if v.Lines == nil {
		v.Lines = []orders.CartLine{}
	}
	for _, l := range lines {
		v.Subtotal = v.Subtotal.Add(l.Subtotal())
	}
	return v, nil
}
