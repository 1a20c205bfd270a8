package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// TransactionStore implements store.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new PostgreSQL-backed transaction store.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const transactionColumns = `
	id, organization_id, transaction_type, transaction_code, transaction_date,
	source_entity_id, target_entity_id, total_amount, currency, status,
	smart_code, COALESCE(idempotency_key, ''), metadata,
	created_at, updated_at, created_by, updated_by
`

const lineColumns = `
	id, transaction_id, organization_id, line_number, line_type, entity_id,
	quantity, unit_amount, line_amount, smart_code, line_data,
	created_at, updated_at, created_by, updated_by
`

// Emit persists the header and all lines in one database transaction.
// A header written without its lines is a correctness bug, never an
// acceptable degraded state.
func (s *TransactionStore) Emit(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if txn.ID == uuid.Nil {
		txn.ID = uuid.Must(uuid.NewV7())
	}

	headerQuery := `
		INSERT INTO universal_transactions (
			id, organization_id, transaction_type, transaction_code, transaction_date,
			source_entity_id, target_entity_id, total_amount, currency, status,
			smart_code, idempotency_key, metadata,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, NULLIF($12, ''), $13, $14, $15, $16, $17
		)
	`

	_, err = tx.Exec(ctx, headerQuery,
		txn.ID, txn.OrganizationID, txn.TransactionType, txn.TransactionCode, txn.TransactionDate,
		txn.SourceEntityID, txn.TargetEntityID, txn.TotalAmount, txn.Currency, txn.Status,
		txn.SmartCode, txn.IdempotencyKey, txn.Metadata,
		txn.CreatedAt, txn.UpdatedAt, txn.CreatedBy, txn.UpdatedBy,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	lineQuery := `
		INSERT INTO universal_transaction_lines (
			id, transaction_id, organization_id, line_number, line_type, entity_id,
			quantity, unit_amount, line_amount, smart_code, line_data,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	batch := &pgx.Batch{}
	for _, line := range txn.Lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.Must(uuid.NewV7())
		}
		line.TransactionID = txn.ID
		line.OrganizationID = txn.OrganizationID
		batch.Queue(lineQuery,
			line.ID, line.TransactionID, line.OrganizationID, line.LineNumber, line.LineType, line.EntityID,
			line.Quantity, line.UnitAmount, line.LineAmount, line.SmartCode, line.LineData,
			line.CreatedAt, line.UpdatedAt, line.CreatedBy, line.UpdatedBy,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < len(txn.Lines); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return nil, mapPostgresError(fmt.Errorf("failed to insert line %d: %w", i, err))
		}
	}
	if err := results.Close(); err != nil {
		return nil, mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPostgresError(err)
	}

	log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("transaction_code", txn.TransactionCode).
		Int("line_count", len(txn.Lines)).
		Msg("Persisted transaction")

	return txn, nil
}

// GetByIdempotencyKey returns a prior transaction emitted with the same
// key, or (nil, nil) when none exists.
func (s *TransactionStore) GetByIdempotencyKey(ctx context.Context, orgID uuid.UUID, key string) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM universal_transactions
		WHERE organization_id = $1 AND idempotency_key = $2
	`

	txn, err := scanTransaction(s.pool.QueryRow(ctx, query, orgID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapPostgresError(err)
	}

	if err := s.hydrateLines(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Get retrieves one transaction with its lines, ordered by line number.
func (s *TransactionStore) Get(ctx context.Context, orgID, txnID uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM universal_transactions
		WHERE id = $1 AND organization_id = $2
	`

	txn, err := scanTransaction(s.pool.QueryRow(ctx, query, txnID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTransactionNotFound
		}
		return nil, mapPostgresError(err)
	}

	if err := s.hydrateLines(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// List returns a page of transaction headers matching the filter, newest
// first. Lines are not hydrated.
func (s *TransactionStore) List(ctx context.Context, orgID uuid.UUID, filter store.TransactionFilter, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM universal_transactions
		WHERE organization_id = $1
	`

	args := []any{orgID}
	argIdx := 2

	if filter.TransactionType != "" {
		query += fmt.Sprintf(" AND transaction_type = $%d", argIdx)
		args = append(args, filter.TransactionType)
		argIdx++
	}
	if filter.TransactionCode != "" {
		query += fmt.Sprintf(" AND transaction_code = $%d", argIdx)
		args = append(args, filter.TransactionCode)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.SmartCode != "" {
		query += fmt.Sprintf(" AND smart_code = $%d", argIdx)
		args = append(args, filter.SmartCode)
		argIdx++
	}
	if filter.EntityID != nil {
		query += fmt.Sprintf(" AND (source_entity_id = $%d OR target_entity_id = $%d)", argIdx, argIdx)
		args = append(args, *filter.EntityID)
		argIdx++
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND transaction_date >= $%d", argIdx)
		args = append(args, *filter.DateFrom)
		argIdx++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND transaction_date <= $%d", argIdx)
		args = append(args, *filter.DateTo)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return txns, nil
}

func (s *TransactionStore) hydrateLines(ctx context.Context, txn *models.Transaction) error {
	query := `
		SELECT ` + lineColumns + `
		FROM universal_transaction_lines
		WHERE transaction_id = $1
		ORDER BY line_number ASC
	`

	rows, err := s.pool.Query(ctx, query, txn.ID)
	if err != nil {
		return mapPostgresError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.TransactionLine
		err := rows.Scan(
			&line.ID, &line.TransactionID, &line.OrganizationID,
			&line.LineNumber, &line.LineType, &line.EntityID,
			&line.Quantity, &line.UnitAmount, &line.LineAmount,
			&line.SmartCode, &line.LineData,
			&line.CreatedAt, &line.UpdatedAt, &line.CreatedBy, &line.UpdatedBy,
		)
		if err != nil {
			return mapPostgresError(err)
		}
		txn.Lines = append(txn.Lines, &line)
	}

	return rows.Err()
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var txn models.Transaction
	err := row.Scan(
		&txn.ID, &txn.OrganizationID, &txn.TransactionType, &txn.TransactionCode, &txn.TransactionDate,
		&txn.SourceEntityID, &txn.TargetEntityID, &txn.TotalAmount, &txn.Currency, &txn.Status,
		&txn.SmartCode, &txn.IdempotencyKey, &txn.Metadata,
		&txn.CreatedAt, &txn.UpdatedAt, &txn.CreatedBy, &txn.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
