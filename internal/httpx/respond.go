package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func statusFor(kind string) int {
	switch kind {
	case "ValidationError", "EmptyCart":
		return http.StatusBadRequest
	case "Forbidden":
		return http.StatusForbidden
	case "NotFound":
		return http.StatusNotFound
	case "InsufficientStock", "InvalidTransition", "DuplicateTransaction":
		return http.StatusConflict
	case "Busy":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := orders.Kind(err)
	code := statusFor(kind)
	body := errorBody{Error: kind, Message: err.Error()}
	var se *orders.StockError
	if errors.As(err, &se) {
		body.Details = se
	}
	if code == http.StatusInternalServerError {
		log.Error("request_failed", "error", err)
		body.Message = "internal error"
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, body)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %w", orders.ErrValidation, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", orders.ErrValidation, name)
	}
	return id, nil
}

type orderItemResp struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	ItemPrice decimal.Decimal `json:"item_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderResp struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	ShippingAddress string          `json:"shipping_address"`
	Status          orders.Status   `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []orderItemResp `json:"items"`
}

func toOrderResp(o orders.Order) orderResp {
	out := orderResp{
		ID:              o.ID,
		UserID:          o.UserID,
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           make([]orderItemResp, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemResp{
			ProductID: it.ProductID, Quantity: it.Quantity, ItemPrice: it.ItemPrice, Subtotal: it.Subtotal(),
		})
	}
	return out
}

func toOrderList(list []orders.Order) []orderResp {
	out := make([]orderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	return out
}

type paymentResp struct {
	ID            int64                `json:"id"`
	OrderID       int64                `json:"order_id"`
	TransactionNo string               `json:"transaction_no"`
	Amount        decimal.Decimal      `json:"amount"`
	Method        string               `json:"method"`
	Status        orders.PaymentStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
}

func toPaymentResp(p orders.Payment) paymentResp {
	return paymentResp{
		ID: p.ID, OrderID: p.OrderID, TransactionNo: p.TransactionNo, Amount: p.Amount,
		Method: p.Method, Status: p.Status, CreatedAt: p.CreatedAt,
	}
}
