package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

// Service is the checkout orchestrator. Both checkout surfaces (explicit item list and cart
// drain) and every lifecycle operation go through it.
type Service struct {
	Store          Store
	Logger         *slog.Logger
	Metrics        *metrics.Checkout
	ServiceName    string // envelope producer
	DefaultAddress string // used by cart checkouts without an address
}

// Placement is the committed result of a checkout.
type Placement struct {
	OrderID     int64              `json:"order_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Status      orders.Status      `json:"status"`
	Items       []orders.OrderItem `json:"-"`
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return obs.Discard()
	}
	return s.Logger
}

// PlaceOrder converts the lines supplied by src into an order in one unit of work:
// header, per-line reservation in ascending product order, line snapshots, total, and for
// cart checkouts the removal of the consumed cart rows. Any failure rolls all of it back.
func (s *Service) PlaceOrder(ctx context.Context, actor Actor, shippingAddress string, src ItemSource) (Placement, error) {
	start := time.Now()
	pl, err := s.placeOrder(ctx, actor, shippingAddress, src)
	if err != nil {
		s.Metrics.CheckoutFailed(src.Name(), orders.Kind(err), time.Since(start))
		s.logger().Warn("checkout_failed",
			"source", src.Name(), "user_id", actor.UserID, "kind", orders.Kind(err), "error", err,
			"trace_id", obs.TraceID(ctx))
		return Placement{}, err
	}
	s.Metrics.OrderPlaced(src.Name(), time.Since(start))
	s.logger().Info("order_placed",
		"source", src.Name(), "order_id", pl.OrderID, "user_id", actor.UserID,
		"total_amount", pl.TotalAmount.StringFixed(2), "lines", len(pl.Items),
		"trace_id", obs.TraceID(ctx))
	return pl, nil
}

// PlaceOrderExplicit is the request/response checkout with a caller-supplied item list.
func (s *Service) PlaceOrderExplicit(ctx context.Context, actor Actor, shippingAddress string, items []orders.LineItem) (Placement, error) {
	return s.PlaceOrder(ctx, actor, shippingAddress, ExplicitItems(items...))
}

// PlaceOrderFromCart drains the caller's cart. An empty address falls back to DefaultAddress.
func (s *Service) PlaceOrderFromCart(ctx context.Context, actor Actor, shippingAddress string) (Placement, error) {
	return s.PlaceOrder(ctx, actor, shippingAddress, FromCart())
}

func (s *Service) placeOrder(ctx context.Context, actor Actor, shippingAddress string, src ItemSource) (Placement, error) {
	if err := actor.validate(); err != nil {
		return Placement{}, err
	}
	addr := strings.TrimSpace(shippingAddress)
	_, isCart := src.(cartSource)
	if addr == "" && isCart {
		addr = strings.TrimSpace(s.DefaultAddress)
	}
	// the cart path reports an empty cart before a missing address
	if !isCart {
		if err := validateAddress(addr); err != nil {
			return Placement{}, err
		}
	}

	var pl Placement
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := src.lines(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if isCart {
			if err := validateAddress(addr); err != nil {
				return err
			}
		}

		order := &orders.Order{
			UserID:          actor.UserID,
			ShippingAddress: addr,
			Status:          orders.StatusPending,
			TotalAmount:     decimal.Zero,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		total := decimal.Zero
		items := make([]orders.OrderItem, 0, len(lines))
		for _, l := range lines {
			price, err := reserve(ctx, tx, l)
			if err != nil {
				return err
			}
			it := orders.OrderItem{OrderID: order.ID, ProductID: l.ProductID, Quantity: l.Quantity, ItemPrice: price}
			if err := tx.InsertOrderItem(ctx, it); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			total = total.Add(it.Subtotal())
			items = append(items, it)
		}
		if err := tx.SetOrderTotal(ctx, order.ID, total); err != nil {
			return fmt.Errorf("set order total: %w", err)
		}
		if err := src.consume(ctx, tx, actor.UserID, lines); err != nil {
			return fmt.Errorf("consume %s items: %w", src.Name(), err)
		}

		payload := orders.OrderPlacedPayload{
			OrderID:     order.ID,
			UserID:      actor.UserID,
			Source:      src.Name(),
			Status:      order.Status,
			TotalAmount: total,
		}
		for _, it := range items {
			payload.Items = append(payload.Items, orders.ItemPrice{ProductID: it.ProductID, Quantity: it.Quantity, ItemPrice: it.ItemPrice})
		}
		if err := s.emit(ctx, tx, orders.EventOrderPlaced, order.ID, payload); err != nil {
			return err
		}

		pl = Placement{OrderID: order.ID, TotalAmount: total, Status: order.Status, Items: items}
		return nil
	})
	return pl, err
}

// MaxAddressLen matches orders.shipping_address VARCHAR(255).
const MaxAddressLen = 255

func validateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: shipping address is required", orders.ErrValidation)
	}
	if utf8.RuneCountInString(addr) > MaxAddressLen {
		return fmt.Errorf("%w: shipping address longer than %d characters", orders.ErrValidation, MaxAddressLen)
	}
	return nil
}

// emit appends an event to the outbox of the current unit of work, so it is published
// only if the state change it describes commits.
func (s *Service) emit(ctx context.Context, tx Tx, eventType string, orderID int64, payload any) error {
	env, err := orders.NewEnvelope(eventType, s.ServiceName, obs.TraceID(ctx), orderID, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return tx.AppendOutbox(ctx, orders.OutboxRecord{
		EventID: env.EventID,
		Topic:   orders.TopicFor(eventType),
		Key:     orders.PartitionKey(orderID),
		Payload: b,
	})
}
