package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/marketplace-orders/internal/obs"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type PaymentRequest struct {
	OrderID       int64           `json:"order_id"`
	TransactionNo string          `json:"transaction_no"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
}

// Column widths of payments.transaction_no and payments.method.
const (
	MaxTransactionNoLen = 100
	MaxMethodLen        = 50
)

func (r PaymentRequest) validate() (orders.PaymentStatus, error) {
	if r.OrderID <= 0 {
		return "", fmt.Errorf("%w: order id is required", orders.ErrValidation)
	}
	txNo, method := strings.TrimSpace(r.TransactionNo), strings.TrimSpace(r.Method)
	if txNo == "" {
		return "", fmt.Errorf("%w: transaction number is required", orders.ErrValidation)
	}
	if utf8.RuneCountInString(txNo) > MaxTransactionNoLen {
		return "", fmt.Errorf("%w: transaction number longer than %d characters", orders.ErrValidation, MaxTransactionNoLen)
	}
	if method == "" {
		return "", fmt.Errorf("%w: payment method is required", orders.ErrValidation)
	}
	if utf8.RuneCountInString(method) > MaxMethodLen {
		return "", fmt.Errorf("%w: payment method longer than %d characters", orders.ErrValidation, MaxMethodLen)
	}
	if !r.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", orders.ErrValidation)
	}
	if !r.Amount.Equal(r.Amount.Round(2)) {
		return "", fmt.Errorf("%w: amount has more than two decimal places", orders.ErrValidation)
	}
	return orders.ParsePaymentStatus(r.Status)
}

// RecordPayment stores a payment against an order. The order row is locked so concurrent
// payments for one order are checked against the balance one at a time: the sum of
// pending and paid payments may not exceed the order total. Split payments are allowed.
// Only the order's owner or an administrator may record a payment.
func (s *Service) RecordPayment(ctx context.Context, actor Actor, req PaymentRequest) (orders.Payment, error) {
	if err := actor.validate(); err != nil {
		return orders.Payment{}, err
	}
	status, err := req.validate()
	if err != nil {
		return orders.Payment{}, err
	}

	start := time.Now()
	p := orders.Payment{
		OrderID:       req.OrderID,
		TransactionNo: strings.TrimSpace(req.TransactionNo),
		Amount:        req.Amount,
		Method:        strings.TrimSpace(req.Method),
		Status:        status,
	}
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.Owns(o) {
			return fmt.Errorf("%w: order %d belongs to another user", orders.ErrForbidden, o.ID)
		}
		if o.Status == orders.StatusCancelled {
			return fmt.Errorf("%w: order %d is cancelled", orders.ErrInvalidTransition, o.ID)
		}
		if status.CountsTowardTotal() {
			paid, err := tx.PaidAmount(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("sum payments: %w", err)
			}
			if paid.Add(p.Amount).GreaterThan(o.TotalAmount) {
				return fmt.Errorf("%w: payment of %s exceeds outstanding balance %s of order %d",
					orders.ErrValidation, p.Amount.StringFixed(2), o.TotalAmount.Sub(paid).StringFixed(2), o.ID)
			}
		}
		if err := tx.InsertPayment(ctx, &p); err != nil {
			return err
		}
		return s.emit(ctx, tx, orders.EventPaymentRecorded, o.ID, orders.PaymentRecordedPayload{
			PaymentID:     p.ID,
			OrderID:       o.ID,
			TransactionNo: p.TransactionNo,
			Amount:        p.Amount,
			Method:        p.Method,
			Status:        p.Status,
		})
	})
	s.Metrics.Observe("record_payment", err, time.Since(start))
	if err != nil {
		return orders.Payment{}, err
	}
	s.Metrics.PaymentRecorded(string(p.Status))
	s.logger().Info("payment_recorded", "payment_id", p.ID, "order_id", p.OrderID,
		"transaction_no", p.TransactionNo, "amount", p.Amount.StringFixed(2), "trace_id", obs.TraceID(ctx))
	return p, nil
}

// ListPayments is the administrator's view of every payment, newest first.
func (s *Service) ListPayments(ctx context.Context, actor Actor) ([]orders.Payment, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	return s.Store.ListPayments(ctx)
}
