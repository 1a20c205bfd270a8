package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction statuses.
const (
	TransactionStatusPosted   = "posted"
	TransactionStatusReversed = "reversed"
)

// Ledger sides carried in line_data for lines classified as ledger lines.
const (
	LedgerSideDebit  = "DR"
	LedgerSideCredit = "CR"
)

// Line types excluded from the customer-facing total. Payment and
// commission lines are settlement/cost lines, not part of the sale.
const (
	LineTypePayment    = "payment"
	LineTypeCommission = "commission"
)

// Transaction is one business event: a header owning an ordered list of
// lines. Once posted, lines are immutable; amendments are expressed as
// reversal or follow-up transactions.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	TransactionType string          `json:"transaction_type"`
	TransactionCode string          `json:"transaction_code"`
	TransactionDate time.Time       `json:"transaction_date"`
	SourceEntityID  *uuid.UUID      `json:"source_entity_id,omitempty"`
	TargetEntityID  *uuid.UUID      `json:"target_entity_id,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	SmartCode       string          `json:"smart_code"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`

	Lines []*TransactionLine `json:"lines,omitempty"`
}

// TransactionLine is one component of a business event. LineNumber is
// unique within the transaction and defines ordering; no continuity is
// guaranteed. EntityID optionally references a product, account or other
// entity involved in the line.
type TransactionLine struct {
	ID             uuid.UUID       `json:"id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	LineNumber     int             `json:"line_number"`
	LineType       string          `json:"line_type"`
	EntityID       *uuid.UUID      `json:"entity_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitAmount     decimal.Decimal `json:"unit_amount"`
	LineAmount     decimal.Decimal `json:"line_amount"`
	SmartCode      string          `json:"smart_code"`
	LineData       json.RawMessage `json:"line_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}

// LedgerSide extracts the DR/CR side from line_data. Returns "" when the
// line carries no side, which excludes it from balance checking.
func (l *TransactionLine) LedgerSide() string {
	if len(l.LineData) == 0 {
		return ""
	}
	var data struct {
		Side string `json:"side"`
	}
	if err := json.Unmarshal(l.LineData, &data); err != nil {
		return ""
	}
	return data.Side
}
