package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/smartcode"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/heraerp/hera-engine/internal/telemetry"
	"github.com/heraerp/hera-engine/internal/tenant"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TransactionEmitParams are the inputs for transaction.emit.
type TransactionEmitParams struct {
	TransactionType string
	TransactionCode string     // generated when empty
	TransactionDate *time.Time // defaults to now
	SourceEntityID  *uuid.UUID
	TargetEntityID  *uuid.UUID
	Currency        string
	SmartCode       string
	Metadata        json.RawMessage

	// IdempotencyKey makes a retried emit return the original result
	// instead of creating a duplicate transaction.
	IdempotencyKey string

	Lines []LineSpec
}

// LineSpec describes one transaction line. LineNumber 0 means "assign the
// next free number preserving input order".
type LineSpec struct {
	LineNumber int
	LineType   string
	EntityID   *uuid.UUID
	Quantity   decimal.Decimal
	UnitAmount decimal.Decimal
	LineAmount decimal.Decimal
	SmartCode  string
	LineData   json.RawMessage
}

// EmitResult is the outcome of transaction.emit. Suppressed is true when
// a prior emit with the same idempotency key already persisted the
// transaction; the caller receives the original result with the
// informational DUPLICATE_SUPPRESSED code, not an error.
type EmitResult struct {
	Transaction *models.Transaction
	Suppressed  bool
}

// TransactionEmit posts one business event: a header plus its ordered
// lines, persisted atomically. Ledger-classified lines must balance per
// currency before anything is written.
func (e *Engine) TransactionEmit(ctx context.Context, tc tenant.Context, params TransactionEmitParams) (*EmitResult, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	started := time.Now()

	if _, err := smartcode.Validate(params.SmartCode); err != nil {
		return nil, WrapError(CodeInvalidSmartCode, err, "transaction smart code")
	}
	for i, spec := range params.Lines {
		if _, err := smartcode.Validate(spec.SmartCode); err != nil {
			return nil, WrapError(CodeInvalidSmartCode, err, "line %d smart code", i+1)
		}
	}

	// A retried submission of the same logical event returns the original
	// result unchanged.
	if params.IdempotencyKey != "" {
		prior, err := e.stores.Transactions.GetByIdempotencyKey(ctx, tc.OrganizationID, params.IdempotencyKey)
		if err != nil {
			return nil, mapStoreError(err, CodeNotFound)
		}
		if prior != nil {
			telemetry.GetMetrics().TransactionsSuppressedTotal.Add(ctx, 1)
			return &EmitResult{Transaction: prior, Suppressed: true}, nil
		}
	}

	now := e.now()
	txn := &models.Transaction{
		OrganizationID:  tc.OrganizationID,
		TransactionType: params.TransactionType,
		TransactionCode: params.TransactionCode,
		TransactionDate: now,
		SourceEntityID:  params.SourceEntityID,
		TargetEntityID:  params.TargetEntityID,
		Currency:        params.Currency,
		Status:          models.TransactionStatusPosted,
		SmartCode:       params.SmartCode,
		IdempotencyKey:  params.IdempotencyKey,
		Metadata:        params.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       tc.ActorUserID,
		UpdatedBy:       tc.ActorUserID,
	}
	if params.TransactionDate != nil {
		txn.TransactionDate = *params.TransactionDate
	}
	if txn.TransactionCode == "" {
		txn.TransactionCode = generateTransactionCode()
	}

	txn.Lines = buildLines(params.Lines, tc.ActorUserID, now)

	if err := validateLedgerBalance(txn.Lines, txn.Currency); err != nil {
		telemetry.GetMetrics().LedgerImbalancesTotal.Add(ctx, 1)
		return nil, err
	}

	txn.TotalAmount = computeTotalAmount(txn.Lines)

	result, err := e.stores.Transactions.Emit(ctx, txn)
	if err != nil {
		// Lost an idempotency race: the other submission won, return its
		// result as suppressed.
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) && params.IdempotencyKey != "" {
			prior, lookupErr := e.stores.Transactions.GetByIdempotencyKey(ctx, tc.OrganizationID, params.IdempotencyKey)
			if lookupErr == nil && prior != nil {
				telemetry.GetMetrics().TransactionsSuppressedTotal.Add(ctx, 1)
				return &EmitResult{Transaction: prior, Suppressed: true}, nil
			}
		}
		return nil, mapStoreError(err, CodeNotFound)
	}

	telemetry.GetMetrics().TransactionsEmittedTotal.Add(ctx, 1)
	telemetry.GetMetrics().EmitDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	log.Info().
		Str("organization_id", tc.OrganizationID.String()).
		Str("transaction_id", result.ID.String()).
		Str("transaction_code", result.TransactionCode).
		Str("smart_code", result.SmartCode).
		Int("line_count", len(result.Lines)).
		Str("total_amount", result.TotalAmount.String()).
		Msg("Emitted transaction")

	return &EmitResult{Transaction: result}, nil
}

// TransactionReverse creates a new transaction that negates the
// original's ledger lines. The original is never mutated; the reversal
// references it through metadata.
func (e *Engine) TransactionReverse(ctx context.Context, tc tenant.Context, transactionID uuid.UUID, reason string) (*models.Transaction, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}

	original, err := e.stores.Transactions.Get(ctx, tc.OrganizationID, transactionID)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	now := e.now()
	metadata, err := json.Marshal(map[string]string{
		"reversal_of": original.ID.String(),
		"reason":      reason,
	})
	if err != nil {
		return nil, WrapError(CodeInternalError, err, "marshal reversal metadata")
	}

	reversal := &models.Transaction{
		OrganizationID:  tc.OrganizationID,
		TransactionType: original.TransactionType + ".REVERSAL",
		TransactionCode: fmt.Sprintf("%s-REV-%s", original.TransactionCode, shortID()),
		TransactionDate: now,
		SourceEntityID:  original.SourceEntityID,
		TargetEntityID:  original.TargetEntityID,
		Currency:        original.Currency,
		Status:          models.TransactionStatusPosted,
		SmartCode:       original.SmartCode,
		Metadata:        metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       tc.ActorUserID,
		UpdatedBy:       tc.ActorUserID,
	}

	lineNumber := 0
	for _, line := range original.Lines {
		if !smartcode.IsLedgerLine(line.SmartCode) {
			continue
		}
		lineNumber++
		reversal.Lines = append(reversal.Lines, &models.TransactionLine{
			OrganizationID: tc.OrganizationID,
			LineNumber:     lineNumber,
			LineType:       line.LineType,
			EntityID:       line.EntityID,
			Quantity:       line.Quantity,
			UnitAmount:     line.UnitAmount.Neg(),
			LineAmount:     line.LineAmount.Neg(),
			SmartCode:      line.SmartCode,
			LineData:       line.LineData,
			CreatedAt:      now,
			UpdatedAt:      now,
			CreatedBy:      tc.ActorUserID,
			UpdatedBy:      tc.ActorUserID,
		})
	}

	reversal.TotalAmount = computeTotalAmount(reversal.Lines)

	result, err := e.stores.Transactions.Emit(ctx, reversal)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	telemetry.GetMetrics().TransactionsReversedTotal.Add(ctx, 1)
	log.Info().
		Str("organization_id", tc.OrganizationID.String()).
		Str("transaction_id", original.ID.String()).
		Str("reversal_id", result.ID.String()).
		Str("reason", reason).
		Msg("Reversed transaction")

	return result, nil
}

// TransactionGet reads one transaction with its lines.
func (e *Engine) TransactionGet(ctx context.Context, tc tenant.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	txn, err := e.stores.Transactions.Get(ctx, tc.OrganizationID, transactionID)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}
	return txn, nil
}

// TransactionList returns a page of transaction headers.
func (e *Engine) TransactionList(ctx context.Context, tc tenant.Context, filter store.TransactionFilter, limit, offset int) ([]*models.Transaction, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	txns, err := e.stores.Transactions.List(ctx, tc.OrganizationID, filter, limit, offset)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}
	return txns, nil
}

// buildLines converts line specs into rows, assigning missing line
// numbers while preserving input order. Explicit numbers are kept; gaps
// are allowed, duplicates are the caller's mistake and surface as a store
// constraint failure.
func buildLines(specs []LineSpec, actor uuid.UUID, now time.Time) []*models.TransactionLine {
	used := make(map[int]bool, len(specs))
	for _, spec := range specs {
		if spec.LineNumber > 0 {
			used[spec.LineNumber] = true
		}
	}

	next := 1
	lines := make([]*models.TransactionLine, 0, len(specs))
	for _, spec := range specs {
		number := spec.LineNumber
		if number <= 0 {
			for used[next] {
				next++
			}
			number = next
			used[number] = true
		}
		lines = append(lines, &models.TransactionLine{
			OrganizationID: uuid.Nil, // filled by the store from the header
			LineNumber:     number,
			LineType:       spec.LineType,
			EntityID:       spec.EntityID,
			Quantity:       spec.Quantity,
			UnitAmount:     spec.UnitAmount,
			LineAmount:     spec.LineAmount,
			SmartCode:      spec.SmartCode,
			LineData:       spec.LineData,
			CreatedAt:      now,
			UpdatedAt:      now,
			CreatedBy:      actor,
			UpdatedBy:      actor,
		})
	}
	return lines
}

func generateTransactionCode() string {
	return "TXN-" + uuid.Must(uuid.NewV7()).String()
}

func shortID() string {
	return uuid.Must(uuid.NewV7()).String()[:8]
}
