package httpx

import "net/http"

type AddCartItemReq struct {
	ProductID int64 `json:"product_id"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

func (h *OrdersHandler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Svc.Cart(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	delta := 1
	if req.Quantity != nil {
		delta = *req.Quantity
	}
	qty, err := h.Svc.AddToCart(r.Context(), actorFrom(r.Context()), req.ProductID, delta)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": req.ProductID, "quantity": qty})
}

func (h *OrdersHandler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	pid, err := idParam(r, "productId")
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if err := h.Svc.RemoveFromCart(r.Context(), actorFrom(r.Context()), pid); err != nil {
		writeError(w, h.log(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.ClearCart(r.Context(), actorFrom(r.Context())); err != nil {
		writeError(w, h.log(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

