package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
)

// PostgreSQL SQLSTATE codes this layer reacts to.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateLockNotAvailable     = "55P03"
	sqlstateForeignKeyViolation  = "23503"
	sqlstateUniqueViolation      = "23505"
)

// isTransient reports whether err is contention worth retrying: serialization
// failures, deadlocks, and lock timeouts. Everything else is permanent from
// the caller's point of view.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlstateSerializationFailure, sqlstateDeadlockDetected, sqlstateLockNotAvailable:
		return true
	default:
		return false
	}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateForeignKeyViolation
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

// storageError classifies a raw driver error. Transient contention becomes a
// retryable unavailable error so the arbitration retry loop can pick it up;
// anything else is internal. op names the failed statement for logs.
func storageError(op string, err error) error {
	if isTransient(err) {
		return domainErrors.NewUnavailableError("STORAGE_CONTENTION", "storage contention on "+op).WithCause(err)
	}
	return domainErrors.NewInternalError("storage failure on " + op).WithCause(err)
}

// mapTxError normalizes what a transaction wrapper returns. Application
// errors and context cancellation pass through untouched; raw driver errors
// from begin/commit get classified here because they never went through a
// statement-level storageError call.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return storageError("transaction", err)
}
