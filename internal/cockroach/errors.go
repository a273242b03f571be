package cockroach

import (
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Aidin1998/sqltx/pkg/errors"
)

// SQLSTATE codes the backend uses for conflicts the client should retry.
const (
	// SerializationFailure is the standard serialization conflict class.
	SerializationFailure = "40001"
	// DeadlockDetected is surfaced by Postgres-compatible engines when a
	// lock cycle is broken; the losing transaction is safe to re-run.
	DeadlockDetected = "40P01"
)

// classify maps a backend error into the subsystem's typed errors. Conflict
// for the retryable classes, the original error otherwise.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailure, DeadlockDetected:
			return errors.Conflict.
				Explain("serialization conflict (SQLSTATE %s)", pgErr.Code).
				Wrap(err)
		}
	}
	return err
}

// IsRetryable reports whether the retry loop should re-run the transaction
// for this error.
func IsRetryable(err error) bool {
	return errors.Is(err, errors.Conflict)
}
