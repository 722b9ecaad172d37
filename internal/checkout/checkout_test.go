package checkout_test

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/checkout"
	"github.com/ariefcatur/marketplace-orders/internal/memstore"
	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var ctx = context.Background()

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*checkout.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New(2 * time.Second)
	return &checkout.Service{
		Store:          store,
		Logger:         obs.Discard(),
		Metrics:        metrics.NewCheckout(prometheus.NewRegistry()),
		ServiceName:    "order-api",
		DefaultAddress: "Jl. Default 1",
	}, store
}

func product(s *memstore.Store, price string, stock int) orders.Product {
	return s.PutProduct(orders.Product{Name: "p", Price: dec(price), Stock: stock, Active: true})
}

func stock(t *testing.T, s *memstore.Store, id int64) int {
	t.Helper()
	p, ok := s.Product(id)
	require.True(t, ok)
	return p.Stock
}

func items(pairs ...int64) []orders.LineItem {
	var out []orders.LineItem
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, orders.LineItem{ProductID: pairs[i], Quantity: int(pairs[i+1])})
	}
	return out
}

func eventTypes(s *memstore.Store) []string {
	var out []string
	for _, r := range s.Outbox() {
		var env orders.Envelope
		if json.Unmarshal(r.Payload, &env) == nil {
			out = append(out, env.EventType)
		}
	}
	return out
}

func TestLastUnitGoesToExactlyOneBuyer(t *testing.T) {
	svc, store := newService(t)
	p := product(store, "10.00", 1)

	const buyers = 20
	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(user), "addr", items(p.ID, 1))
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, orders.ErrInsufficientStock):
				short.Add(1)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(buyers-1), short.Load())
	assert.Equal(t, 0, stock(t, store, p.ID))
}

func TestStockScenario(t *testing.T) {
	svc, store := newService(t)
	p := product(store, "100", 5)

	pl, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(p.ID, 3))
	require.NoError(t, err)
	assert.True(t, dec("300").Equal(pl.TotalAmount))
	assert.Equal(t, 2, stock(t, store, p.ID))

	_, err = svc.PlaceOrderExplicit(ctx, checkout.Customer(2), "addr", items(p.ID, 3))
	var se *orders.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, p.ID, se.ProductID)
	assert.Equal(t, 3, se.Required)
	assert.Equal(t, 2, se.Available)
	assert.Equal(t, 2, stock(t, store, p.ID))

	_, err = svc.PlaceOrderExplicit(ctx, checkout.Customer(2), "addr", items(p.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, stock(t, store, p.ID))
}

func TestFailedLineRollsBackEarlierLines(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "1", 5)
	b := product(store, "1", 1)

	_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(a.ID, 2, b.ID, 2))
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, 5, stock(t, store, a.ID))
	assert.Equal(t, 1, stock(t, store, b.ID))

	list, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, store.Outbox())
}

func TestTotalIsFrozenAgainstPriceChanges(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "12.50", 10)
	b := product(store, "3.99", 10)

	pl, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(b.ID, 3, a.ID, 2, b.ID, 1))
	require.NoError(t, err)
	assert.True(t, dec("40.96").Equal(pl.TotalAmount), pl.TotalAmount.String())

	store.SetPrice(a.ID, dec("99.00"))
	o, err := svc.GetOrder(ctx, pl.OrderID, checkout.Customer(1))
	require.NoError(t, err)
	require.Len(t, o.Items, 2, "repeated product lines are merged")
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal())
	}
	assert.True(t, sum.Equal(o.TotalAmount))
	assert.True(t, dec("12.50").Equal(o.Items[0].ItemPrice))
	assert.Equal(t, 4, o.Items[1].Quantity)
}

func TestInactiveAndMissingProducts(t *testing.T) {
	svc, store := newService(t)
	off := store.PutProduct(orders.Product{Name: "off", Price: dec("1"), Stock: 9, Active: false})

	_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(off.ID, 1))
	var se *orders.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Available)

	_, err = svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(404, 1))
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = svc.AddToCart(ctx, checkout.Customer(1), off.ID, 1)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestValidation(t *testing.T) {
	svc, store := newService(t)
	p := product(store, "1", 5)

	cases := map[string]func() error{
		"no user": func() error {
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Actor{}, "addr", items(p.ID, 1))
			return err
		},
		"no address": func() error {
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "  ", items(p.ID, 1))
			return err
		},
		"no items": func() error {
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", nil)
			return err
		},
		"zero quantity": func() error {
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(p.ID, 0))
			return err
		},
		"negative cart delta": func() error {
			_, err := svc.AddToCart(ctx, checkout.Customer(1), p.ID, -1)
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(), orders.ErrValidation)
		})
	}
	assert.Equal(t, 5, stock(t, store, p.ID))
}

func TestOversizedQuantitiesAreRejected(t *testing.T) {
	svc, store := newService(t)
	p := product(store, "10", 5)
	buyer := checkout.Customer(1)

	_, err := svc.PlaceOrderExplicit(ctx, buyer, "addr", items(p.ID, math.MaxInt, p.ID, math.MaxInt))
	require.ErrorIs(t, err, orders.ErrValidation)
	_, err = svc.PlaceOrderExplicit(ctx, buyer, "addr", items(p.ID, checkout.MaxQuantity, p.ID, 1))
	require.ErrorIs(t, err, orders.ErrValidation)
	assert.Equal(t, 5, stock(t, store, p.ID))
	assert.Empty(t, store.Outbox())

	_, err = svc.AddToCart(ctx, buyer, p.ID, math.MaxInt)
	require.ErrorIs(t, err, orders.ErrValidation)
	qty, err := svc.AddToCart(ctx, buyer, p.ID, checkout.MaxQuantity)
	require.NoError(t, err)
	assert.Equal(t, checkout.MaxQuantity, qty)
	_, err = svc.AddToCart(ctx, buyer, p.ID, 1)
	require.ErrorIs(t, err, orders.ErrValidation)
	assert.Equal(t, []orders.CartEntry{{UserID: 1, ProductID: p.ID, Quantity: checkout.MaxQuantity}}, store.CartEntries(1))
}

func TestOversizedTextIsRejected(t *testing.T) {
	svc, store := newService(t)
	p := product(store, "10", 5)
	buyer := checkout.Customer(1)

	_, err := svc.PlaceOrderExplicit(ctx, buyer, strings.Repeat("a", checkout.MaxAddressLen+1), items(p.ID, 1))
	require.ErrorIs(t, err, orders.ErrValidation)
	pl, err := svc.PlaceOrderExplicit(ctx, buyer, strings.Repeat("é", checkout.MaxAddressLen), items(p.ID, 1))
	require.NoError(t, err)

	req := checkout.PaymentRequest{OrderID: pl.OrderID, TransactionNo: strings.Repeat("9", checkout.MaxTransactionNoLen+1), Amount: dec("1"), Method: "card"}
	_, err = svc.RecordPayment(ctx, buyer, req)
	require.ErrorIs(t, err, orders.ErrValidation)
	req.TransactionNo, req.Method = "TX-1", strings.Repeat("m", checkout.MaxMethodLen+1)
	_, err = svc.RecordPayment(ctx, buyer, req)
	require.ErrorIs(t, err, orders.ErrValidation)
	assert.Zero(t, store.PaymentCount())
}

func TestCrossingOrdersDoNotDeadlock(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "1", 1000)
	b := product(store, "1", 1000)
	c := product(store, "1", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(u int64) {
			defer wg.Done()
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(u), "addr", items(a.ID, 1, b.ID, 1, c.ID, 1))
			assert.NoError(t, err)
		}(int64(i + 1))
		go func(u int64) {
			defer wg.Done()
			_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(u), "addr", items(c.ID, 1, b.ID, 1, a.ID, 1))
			assert.NoError(t, err)
		}(int64(i + 100))
	}
	wg.Wait()
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		assert.Equal(t, 900, stock(t, store, id))
	}
}

func TestCartCheckout(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "2.00", 5)
	b := product(store, "3.00", 5)
	user := checkout.Customer(7)

	_, err := svc.PlaceOrderFromCart(ctx, user, "")
	require.ErrorIs(t, err, orders.ErrEmptyCart)
	assert.Empty(t, store.Outbox())

	qty, err := svc.AddToCart(ctx, user, a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, qty)
	qty, err = svc.AddToCart(ctx, user, a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
	_, err = svc.AddToCart(ctx, user, b.ID, 1)
	require.NoError(t, err)

	view, err := svc.Cart(ctx, user)
	require.NoError(t, err)
	assert.True(t, dec("9.00").Equal(view.Subtotal))

	pl, err := svc.PlaceOrderFromCart(ctx, user, "")
	require.NoError(t, err)
	assert.True(t, dec("9.00").Equal(pl.TotalAmount))
	assert.Equal(t, orders.StatusPending, pl.Status)
	assert.Empty(t, store.CartEntries(user.UserID))
	assert.Equal(t, 2, stock(t, store, a.ID))

	o, err := svc.GetOrder(ctx, pl.OrderID, user)
	require.NoError(t, err)
	assert.Equal(t, "Jl. Default 1", o.ShippingAddress)
}

func TestFailedCartCheckoutKeepsCart(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "1", 5)
	b := product(store, "1", 1)
	user := checkout.Customer(7)

	_, err := svc.AddToCart(ctx, user, a.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, user, b.ID, 2)
	require.NoError(t, err)

	_, err = svc.PlaceOrderFromCart(ctx, user, "addr")
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, []orders.CartEntry{
		{UserID: 7, ProductID: a.ID, Quantity: 2},
		{UserID: 7, ProductID: b.ID, Quantity: 2},
	}, store.CartEntries(user.UserID))
	assert.Equal(t, 5, stock(t, store, a.ID))
}

func TestEmptyCartWinsOverMissingAddress(t *testing.T) {
	svc, store := newService(t)
	svc.DefaultAddress = ""
	a := product(store, "1", 5)
	user := checkout.Customer(7)

	_, err := svc.PlaceOrderFromCart(ctx, user, "")
	require.ErrorIs(t, err, orders.ErrEmptyCart)

	_, err = svc.AddToCart(ctx, user, a.ID, 2)
	require.NoError(t, err)
	_, err = svc.PlaceOrderFromCart(ctx, user, " ")
	require.ErrorIs(t, err, orders.ErrValidation)
	assert.Len(t, store.CartEntries(user.UserID), 1)
	assert.Equal(t, 5, stock(t, store, a.ID))

	pl, err := svc.PlaceOrderFromCart(ctx, user, "Jl. Merdeka 5")
	require.NoError(t, err)
	o, err := svc.GetOrder(ctx, pl.OrderID, user)
	require.NoError(t, err)
	assert.Equal(t, "Jl. Merdeka 5", o.ShippingAddress)
}

func TestCartAddWaitsForLockedCart(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "1", 5)
	late := product(store, "1", 5)
	user := checkout.Customer(7)
	_, err := svc.AddToCart(ctx, user, a.ID, 1)
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithinTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
			if _, err := tx.LockCart(ctx, user.UserID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	added := make(chan error, 1)
	go func() {
		_, err := svc.AddToCart(ctx, user, late.ID, 1)
		added <- err
	}()
	select {
	case <-added:
		t.Fatal("add completed while the cart was locked")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-added)

	pl, err := svc.PlaceOrderFromCart(ctx, user, "addr")
	require.NoError(t, err)
	assert.Len(t, pl.Items, 2)
	assert.Empty(t, store.CartEntries(user.UserID))
	assert.Equal(t, 4, stock(t, store, late.ID))
}

func TestRemoveAndClearCart(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "1", 5)
	b := product(store, "1", 5)
	user := checkout.Customer(3)
	for _, id := range []int64{a.ID, b.ID} {
		_, err := svc.AddToCart(ctx, user, id, 1)
		require.NoError(t, err)
	}

	require.NoError(t, svc.RemoveFromCart(ctx, user, a.ID))
	require.NoError(t, svc.RemoveFromCart(ctx, user, a.ID))
	assert.Len(t, store.CartEntries(user.UserID), 1)

	require.NoError(t, svc.ClearCart(ctx, user))
	view, err := svc.Cart(ctx, user)
	require.NoError(t, err)
	assert.NotNil(t, view.Lines)
	assert.Empty(t, view.Lines)
	assert.True(t, view.Subtotal.IsZero())
}

func TestCancelOrder(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "5", 10)
	b := product(store, "7", 10)
	owner := checkout.Customer(1)

	pl, err := svc.PlaceOrderExplicit(ctx, owner, "addr", items(a.ID, 3, b.ID, 4))
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, pl.OrderID, checkout.Customer(2))
	require.ErrorIs(t, err, orders.ErrForbidden)
	_, err = svc.CancelOrder(ctx, 999, owner)
	require.ErrorIs(t, err, orders.ErrNotFound)

	o, err := svc.CancelOrder(ctx, pl.OrderID, owner)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, 10, stock(t, store, a.ID))
	assert.Equal(t, 10, stock(t, store, b.ID))

	_, err = svc.CancelOrder(ctx, pl.OrderID, owner)
	require.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, 10, stock(t, store, a.ID))

	assert.Equal(t, []string{orders.EventOrderPlaced, orders.EventOrderCancelled, orders.EventOrderStatusChanged}, eventTypes(store))
}

func TestCancelAfterShipmentIsRejected(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "5", 10)
	owner := checkout.Customer(1)
	admin := checkout.Admin(99)

	pl, err := svc.PlaceOrderExplicit(ctx, owner, "addr", items(a.ID, 1))
	require.NoError(t, err)
	_, err = svc.SetOrderStatus(ctx, pl.OrderID, "shipped", admin)
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, pl.OrderID, owner)
	require.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, 9, stock(t, store, a.ID))
}

func TestSetOrderStatus(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "5", 10)
	owner := checkout.Customer(1)
	admin := checkout.Admin(99)

	pl, err := svc.PlaceOrderExplicit(ctx, owner, "addr", items(a.ID, 2))
	require.NoError(t, err)

	_, err = svc.SetOrderStatus(ctx, pl.OrderID, "Processing", owner)
	require.ErrorIs(t, err, orders.ErrForbidden)
	_, err = svc.SetOrderStatus(ctx, pl.OrderID, "Lost", admin)
	require.ErrorIs(t, err, orders.ErrValidation)
	_, err = svc.SetOrderStatus(ctx, pl.OrderID, "Delivered", admin)
	require.ErrorIs(t, err, orders.ErrInvalidTransition)

	o, err := svc.SetOrderStatus(ctx, pl.OrderID, "PROCESSING", admin)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)

	o, err = svc.SetOrderStatus(ctx, pl.OrderID, "Cancelled", admin)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, 10, stock(t, store, a.ID), "admin cancellation restocks too")

	_, err = svc.SetOrderStatus(ctx, pl.OrderID, "Pending", admin)
	require.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestOrderVisibility(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "1", 10)
	for _, u := range []int64{1, 1, 2} {
		_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(u), "addr", items(a.ID, 1))
		require.NoError(t, err)
	}

	mine, err := svc.ListOrders(ctx, checkout.Customer(1))
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Greater(t, mine[0].ID, mine[1].ID)

	_, err = svc.GetOrder(ctx, mine[0].ID, checkout.Customer(2))
	require.ErrorIs(t, err, orders.ErrForbidden)
	_, err = svc.GetOrder(ctx, mine[0].ID, checkout.Admin(9))
	require.NoError(t, err)

	_, err = svc.ListAllOrders(ctx, checkout.Customer(1))
	require.ErrorIs(t, err, orders.ErrForbidden)
	all, err := svc.ListAllOrders(ctx, checkout.Admin(9))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordPayment(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "50", 10)
	pl, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(a.ID, 2))
	require.NoError(t, err)

	req := func(txNo, amount, status string) checkout.PaymentRequest {
		return checkout.PaymentRequest{OrderID: pl.OrderID, TransactionNo: txNo, Amount: dec(amount), Method: "transfer", Status: status}
	}

	p, err := svc.RecordPayment(ctx, checkout.Customer(1), req("TX-1", "60", ""))
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, p.Status)

	_, err = svc.RecordPayment(ctx, checkout.Customer(1), req("TX-1", "10", "Paid"))
	require.ErrorIs(t, err, orders.ErrDuplicateTransaction)
	assert.Equal(t, 1, store.PaymentCount())

	_, err = svc.RecordPayment(ctx, checkout.Customer(1), req("TX-2", "40.01", "Paid"))
	require.ErrorIs(t, err, orders.ErrValidation)
	_, err = svc.RecordPayment(ctx, checkout.Customer(1), req("TX-3", "0.001", "Paid"))
	require.ErrorIs(t, err, orders.ErrValidation)

	// failed payments do not count toward the total
	_, err = svc.RecordPayment(ctx, checkout.Customer(1), req("TX-4", "100", "Failed"))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, checkout.Customer(1), req("TX-5", "40", "Paid"))
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, checkout.Customer(1), checkout.PaymentRequest{OrderID: 999, TransactionNo: "TX-9", Amount: dec("1"), Method: "x"})
	require.ErrorIs(t, err, orders.ErrNotFound)

	_, err = svc.ListPayments(ctx, checkout.Customer(1))
	require.ErrorIs(t, err, orders.ErrForbidden)
	list, err := svc.ListPayments(ctx, checkout.Admin(9))
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestPaymentOnCancelledOrder(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "50", 10)
	owner := checkout.Customer(1)
	pl, err := svc.PlaceOrderExplicit(ctx, owner, "addr", items(a.ID, 1))
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, pl.OrderID, owner)
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, owner, checkout.PaymentRequest{OrderID: pl.OrderID, TransactionNo: "TX", Amount: dec("1"), Method: "x"})
	require.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestPaymentRequiresOwnerOrAdmin(t *testing.T) {
	svc, store := newService(t)
	a := product(store, "50", 10)
	pl, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(a.ID, 1))
	require.NoError(t, err)
	req := checkout.PaymentRequest{OrderID: pl.OrderID, TransactionNo: "TX-1", Amount: dec("10"), Method: "x"}

	_, err = svc.RecordPayment(ctx, checkout.Customer(2), req)
	require.ErrorIs(t, err, orders.ErrForbidden)
	_, err = svc.RecordPayment(ctx, checkout.Actor{}, req)
	require.ErrorIs(t, err, orders.ErrValidation)
	assert.Zero(t, store.PaymentCount())

	_, err = svc.RecordPayment(ctx, checkout.Admin(9), req)
	require.NoError(t, err)
}

func TestBusyWhenLockIsHeld(t *testing.T) {
	store := memstore.New(50 * time.Millisecond)
	svc := &checkout.Service{Store: store, Logger: obs.Discard()}
	a := product(store, "1", 5)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithinTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
			if _, err := tx.LockProduct(ctx, a.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(a.ID, 1))
	close(release)
	require.NoError(t, <-done)

	require.ErrorIs(t, err, orders.ErrBusy)
	assert.Equal(t, 5, stock(t, store, a.ID))
	list, _ := store.ListOrders(ctx)
	assert.Empty(t, list)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := memstore.New(time.Second)
	m := metrics.NewCheckout(reg)
	svc := &checkout.Service{Store: store, Metrics: m}
	a := product(store, "1", 2)

	_, err := svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(a.ID, 2))
	require.NoError(t, err)
	_, err = svc.PlaceOrderExplicit(ctx, checkout.Customer(1), "addr", items(a.ID, 1))
	require.Error(t, err)
	_, err = svc.PlaceOrderFromCart(ctx, checkout.Customer(1), "addr")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Placed.WithLabelValues("explicit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("explicit", "InsufficientStock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("cart", "EmptyCart")))
}
