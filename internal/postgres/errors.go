package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeStringTooLong       = "22001"
	codeNumericOutOfRange   = "22003"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
	codeLockNotAvailable    = "55P03"
	codeQueryCanceled       = "57014"

	constraintTransactionNo = "payments_transaction_no_key"
	constraintStock         = "products_stock_non_negative"
)

// classify maps driver errors onto the engine's error kinds. Errors that already carry a
// kind pass through untouched.
func classify(err error) error {
	if err == nil || orders.Kind(err) != "Internal" {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeQueryCanceled, codeDeadlockDetected, codeSerializationFail:
			return fmt.Errorf("%w: %w", orders.ErrBusy, err)
		case codeStringTooLong, codeNumericOutOfRange:
			return fmt.Errorf("%w: %s", orders.ErrValidation, pgErr.Message)
		case codeUniqueViolation:
			if pgErr.ConstraintName == constraintTransactionNo {
				return fmt.Errorf("%w: %s", orders.ErrDuplicateTransaction, pgErr.Detail)
			}
		case codeCheckViolation:
			if pgErr.ConstraintName == constraintStock {
				return fmt.Errorf("%w: %w", orders.ErrInsufficientStock, err)
			}
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", orders.ErrNotFound, pgErr.Detail)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", orders.ErrBusy, err)
	}
	return err
}
