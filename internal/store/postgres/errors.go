package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/heraerp/hera-engine/internal/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPostgresError maps PostgreSQL-specific errors to the store sentinel
// errors. Returns the original error when it is not a PostgreSQL error or
// does not match a known pattern.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "idx_transactions_org_idem_key":
			return store.ErrDuplicateIdempotencyKey
		case "idx_transactions_org_code":
			return store.ErrDuplicateTransactionCode
		case "core_organizations_organization_code_key", "core_organizations_pkey":
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		// A referenced entity or header row does not exist.
		if strings.Contains(pgErr.ConstraintName, "transaction") {
			return fmt.Errorf("%w: %s", store.ErrTransactionNotFound, pgErr.Detail)
		}
		return fmt.Errorf("%w: %s", store.ErrEntityNotFound, pgErr.Detail)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
