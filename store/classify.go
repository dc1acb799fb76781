package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/use-agent/hnpulse/models"
)

// Postgres error classes/codes that indicate a retry may succeed.
const (
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	classConnectionException = "08"
	classInsufficientRes     = "53"
)

// classify maps a database driver error into the retryability taxonomy.
// Connection loss, deadlocks, serialization conflicts, and resource
// exhaustion are transient; integrity violations are invariant breaks;
// anything unrecognised stays transient so an unclassified blip is not
// promoted to a permanent failure.
func classify(err error, op string) error {
	msg := fmt.Sprintf("store: %s", op)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeSerializationFailure,
			pgErr.SQLState()[:2] == classConnectionException,
			pgErr.SQLState()[:2] == classInsufficientRes:
			return models.NewDBTransientError(msg, err)
		case pgErr.SQLState()[:2] == "23": // integrity_constraint_violation
			return models.NewDBInvariantError(msg, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewDBTransientError(msg, err)
	}

	return models.NewDBTransientError(msg, err)
}

// classifyNil is classify for the tail error of a rows iteration, passing nil
// through untouched.
func classifyNil(err error, op string) error {
	if err == nil {
		return nil
	}
	return classify(err, op)
}
