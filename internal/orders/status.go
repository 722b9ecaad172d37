package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusShipped: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Cancellable reports whether an owner may still cancel an order in this status.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// ParseStatus accepts any casing ("shipped", "SHIPPED") and returns the canonical value.
func ParseStatus(s string) (Status, error) {
	t := strings.TrimSpace(s)
	for st := range validNext {
		if strings.EqualFold(string(st), t) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

// ParsePaymentStatus defaults an empty value to Pending.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return PaymentPending, nil
	}
	for _, ps := range []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded} {
		if strings.EqualFold(string(ps), t) {
			return ps, nil
		}
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrValidation, s)
}

// CountsTowardTotal: failed and refunded payments do not consume the order balance.
func (p PaymentStatus) CountsTowardTotal() bool {
	return p == PaymentPending || p == PaymentPaid
}
