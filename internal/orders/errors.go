package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrNotFound             = errors.New("not found")
	ErrProductNotFound      = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrValidation           = errors.New("validation error")
	ErrEmptyCart            = errors.New("cart is empty")
	// ErrBusy is retryable: lock timeout, deadlock victim, serialization failure.
	ErrBusy = errors.New("storage busy")
)

// StockError identifies the line that could not be reserved.
type StockError struct {
	ProductID int64 `json:"product_id"`
	Required  int   `json:"required"`
	Available int   `json:"available"`
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: required %d, available %d", e.ProductID, e.Required, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Kind maps an error onto the stable name exposed to callers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientStock):
		return "InsufficientStock"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrDuplicateTransaction):
		return "DuplicateTransaction"
	case errors.Is(err, ErrEmptyCart):
		return "EmptyCart"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrBusy):
		return "Busy"
	default:
		return "Internal"
	}
}
