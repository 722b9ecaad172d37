package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/checkout"
	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, st redisx.CachedStatus) error
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, userID int64, key string) (int64, bool, error)
	Remember(ctx context.Context, userID int64, key string, orderID int64) (bool, error)
}

// OrdersHandler serves the order, cart, payment and admin routes. Cache and Idem are
// optional; without them every read goes to the store and Idempotency-Key is ignored.
type OrdersHandler struct {
	Svc    *checkout.Service
	Cache  StatusCache
	Idem   IdempotencyStore
	Logger *slog.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(WithActor)

		r.Post("/orders", h.createOrder)
		r.Post("/orders/checkout", h.checkoutCart)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getOrderStatus)
		r.Post("/orders/{id}/cancel", h.cancelOrder)

		r.Post("/payments", h.recordPayment)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Delete("/cart/items/{productId}", h.removeCartItem)
		r.Delete("/cart", h.clearCart)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", h.listAllOrders)
			r.Put("/orders/{id}/status", h.setOrderStatus)
			r.Get("/payments", h.listPayments)
		})
	})
}

func (h *OrdersHandler) log() *slog.Logger {
	if h.Logger == nil {
		return obs.Discard()
	}
	return h.Logger
}

type CreateOrderReq struct {
	ShippingAddress string            `json:"shipping_address"`
	Items           []orders.LineItem `json:"items"`
}

type CreateOrderResp struct {
	OrderID     int64           `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      orders.Status   `json:"status"`
	Idempotent  bool            `json:"idempotent"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	var req CreateOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}

	// Fast-path idempotency via Redis (DB tetap jadi kebenaran)
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" && h.Idem != nil {
		if id, ok, err := h.Idem.Lookup(r.Context(), actor.UserID, idemKey); err != nil {
			h.log().Warn("idempotency_lookup_failed", "error", err)
		} else if ok {
			o, err := h.Svc.GetOrder(r.Context(), id, actor)
			if err == nil {
				writeJSON(w, http.StatusOK, CreateOrderResp{OrderID: o.ID, TotalAmount: o.TotalAmount, Status: o.Status, Idempotent: true})
				return
			}
			h.log().Warn("idempotency_stale", "order_id", id, "error", err)
		}
	}

	pl, err := h.Svc.PlaceOrderExplicit(r.Context(), actor, req.ShippingAddress, req.Items)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if idemKey != "" && h.Idem != nil {
		if _, err := h.Idem.Remember(r.Context(), actor.UserID, idemKey, pl.OrderID); err != nil {
			h.log().Warn("idempotency_store_failed", "order_id", pl.OrderID, "error", err)
		}
	}
	h.cacheStatus(r.Context(), pl.OrderID, actor.UserID, pl.Status)
	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: pl.OrderID, TotalAmount: pl.TotalAmount, Status: pl.Status})
}

type CheckoutCartReq struct {
	ShippingAddress string `json:"shipping_address"`
}

func (h *OrdersHandler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	var req CheckoutCartReq
	// body boleh kosong; alamat default dipakai
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.log(), err)
		return
	}
	pl, err := h.Svc.PlaceOrderFromCart(r.Context(), actor, req.ShippingAddress)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(r.Context(), pl.OrderID, actor.UserID, pl.Status)
	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: pl.OrderID, TotalAmount: pl.TotalAmount, Status: pl.Status})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.ListOrders(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	o, err := h.Svc.GetOrder(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.log(), err)
		return
	}

	// 1) coba cache
	if h.Cache != nil {
		st, ok, err := h.Cache.Get(r.Context(), id)
		if err != nil {
			h.log().Warn("status_cache_get_failed", "order_id", id, "error", err)
		}
		if ok && st.UserID != 0 && (st.UserID == actor.UserID || actor.IsAdmin()) {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}

	// 2) fallback DB
	o, err := h.Svc.GetOrder(r.Context(), id, actor)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	st := redisx.CachedStatus{OrderID: o.ID, UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt}
	if h.Cache != nil {
		if err := h.Cache.Set(r.Context(), st); err != nil {
			h.log().Warn("status_cache_set_failed", "order_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	o, err := h.Svc.CancelOrder(r.Context(), id, actor)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(r.Context(), o.ID, o.UserID, o.Status)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

type SetStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	var req SetStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	o, err := h.Svc.SetOrderStatus(r.Context(), id, req.Status, actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(r.Context(), o.ID, o.UserID, o.Status)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.ListAllOrders(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *OrdersHandler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req checkout.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	p, err := h.Svc.RecordPayment(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResp(p))
}

func (h *OrdersHandler) listPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.ListPayments(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]paymentResp, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResp(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// cacheStatus writes through after a committed change; the projector converges it too.
func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID, userID int64, status orders.Status) {
	if h.Cache == nil {
		return
	}
	st := redisx.CachedStatus{OrderID: orderID, UserID: userID, Status: status, UpdatedAt: time.Now().UTC()}
	if err := h.Cache.Set(ctx, st); err != nil {
		h.log().Warn("status_cache_set_failed", "order_id", orderID, "error", err)
	}
}
