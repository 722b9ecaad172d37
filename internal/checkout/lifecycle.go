package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

// CancelOrder is the owner's cancellation. It is legal only for the order's owner and only
// while the order is Pending or Processing. Every item's quantity is credited back to the
// ledger in the same unit of work that flips the status.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, actor Actor) (orders.Order, error) {
	start := time.Now()
	var out orders.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.Owns(o) {
			return fmt.Errorf("%w: order %d belongs to another user", orders.ErrForbidden, orderID)
		}
		if !o.Status.Cancellable() {
			return fmt.Errorf("%w: order %d is %s and can no longer be cancelled", orders.ErrInvalidTransition, orderID, o.Status)
		}
		out, err = s.cancelLocked(ctx, tx, o, false)
		return err
	})
	s.Metrics.Observe("cancel_order", err, time.Since(start))
	if err != nil {
		return orders.Order{}, err
	}
	s.Metrics.OrderCancelled(false, unitsOf(out.Items))
	s.logger().Info("order_cancelled", "order_id", orderID, "user_id", actor.UserID, "trace_id", obs.TraceID(ctx))
	return out, nil
}

// SetOrderStatus is the administrative override. It needs the admin capability and follows
// the transition table; moving to Cancelled restocks exactly like CancelOrder.
func (s *Service) SetOrderStatus(ctx context.Context, orderID int64, newStatus string, actor Actor) (orders.Order, error) {
	if err := actor.requireAdmin(); err != nil {
		return orders.Order{}, err
	}
	to, err := orders.ParseStatus(newStatus)
	if err != nil {
		return orders.Order{}, err
	}

	start := time.Now()
	var out orders.Order
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
		}
		if to == orders.StatusCancelled {
			out, err = s.cancelLocked(ctx, tx, o, true)
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, to); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		from := o.Status
		o.Status = to
		out = o
		return s.emit(ctx, tx, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{OrderID: o.ID, From: from, To: to})
	})
	s.Metrics.Observe("set_order_status", err, time.Since(start))
	if err != nil {
		return orders.Order{}, err
	}
	if to == orders.StatusCancelled {
		s.Metrics.OrderCancelled(true, unitsOf(out.Items))
	}
	s.logger().Info("order_status_set", "order_id", orderID, "status", to, "admin_id", actor.UserID, "trace_id", obs.TraceID(ctx))
	return out, nil
}

// cancelLocked expects o to be locked by tx.
func (s *Service) cancelLocked(ctx context.Context, tx Tx, o orders.Order, byAdmin bool) (orders.Order, error) {
	restocked, err := restock(ctx, tx, o.Items)
	if err != nil {
		return orders.Order{}, err
	}
	if err := tx.UpdateOrderStatus(ctx, o.ID, orders.StatusCancelled); err != nil {
		return orders.Order{}, fmt.Errorf("update order status: %w", err)
	}
	from := o.Status
	o.Status = orders.StatusCancelled
	if err := s.emit(ctx, tx, orders.EventOrderCancelled, o.ID, orders.OrderCancelledPayload{
		OrderID: o.ID, UserID: o.UserID, Restocked: restocked, ByAdmin: byAdmin,
	}); err != nil {
		return orders.Order{}, err
	}
	if err := s.emit(ctx, tx, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID: o.ID, From: from, To: o.Status,
	}); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func unitsOf(items []orders.OrderItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// GetOrder returns the order with its items to its owner or to an administrator.
func (s *Service) GetOrder(ctx context.Context, orderID int64, actor Actor) (orders.Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if !actor.Owns(o) && !actor.IsAdmin() {
		return orders.Order{}, fmt.Errorf("%w: order %d belongs to another user", orders.ErrForbidden, orderID)
	}
	return o, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, actor Actor) ([]orders.Order, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	return s.Store.ListOrdersByUser(ctx, actor.UserID)
}

// ListAllOrders is the administrator's view of every order, newest first.
func (s *Service) ListAllOrders(ctx context.Context, actor Actor) ([]orders.Order, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return s.Store.ListOrders(ctx)
}
