package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/engine"
	"github.com/shopspring/decimal"
)

// requestContext is the tenant envelope every mutating request carries.
type requestContext struct {
	OrganizationID string `json:"organization_id"`
	ActorUserID    string `json:"actor_user_id"`
}

type entityUpsertRequest struct {
	requestContext

	EntityID   *uuid.UUID      `json:"entity_id,omitempty"`
	EntityType string          `json:"entity_type" binding:"required"`
	EntityName string          `json:"entity_name" binding:"required"`
	EntityCode string          `json:"entity_code"`
	SmartCode  string          `json:"smart_code" binding:"required"`
	Status     string          `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`

	DynamicFields map[string]fieldSpec `json:"dynamic_fields,omitempty"`
	Relationships []relationshipSpec   `json:"relationships,omitempty"`

	IncludeDynamic       bool `json:"include_dynamic"`
	IncludeRelationships bool `json:"include_relationships"`
}

type fieldSpec struct {
	Type      string `json:"type" binding:"required"`
	Value     any    `json:"value"`
	SmartCode string `json:"smart_code" binding:"required"`
}

type relationshipSpec struct {
	ToEntityID       uuid.UUID       `json:"to_entity_id" binding:"required"`
	RelationshipType string          `json:"relationship_type" binding:"required"`
	RelationshipData json.RawMessage `json:"relationship_data,omitempty"`
	SmartCode        string          `json:"smart_code" binding:"required"`
}

type dynamicSetRequest struct {
	requestContext

	EntityID uuid.UUID            `json:"entity_id" binding:"required"`
	Fields   map[string]fieldSpec `json:"fields" binding:"required"`
}

type relationshipUpsertRequest struct {
	requestContext

	FromEntityID     uuid.UUID       `json:"from_entity_id" binding:"required"`
	ToEntityID       uuid.UUID       `json:"to_entity_id" binding:"required"`
	RelationshipType string          `json:"relationship_type" binding:"required"`
	RelationshipData json.RawMessage `json:"relationship_data,omitempty"`
	SmartCode        string          `json:"smart_code" binding:"required"`
	IsActive         *bool           `json:"is_active,omitempty"`
	EffectiveDate    *time.Time      `json:"effective_date,omitempty"`
}

type relationshipDeactivateRequest struct {
	requestContext

	RelationshipID uuid.UUID `json:"relationship_id" binding:"required"`
}

type transactionEmitRequest struct {
	requestContext

	TransactionType string          `json:"transaction_type" binding:"required"`
	TransactionCode string          `json:"transaction_code"`
	TransactionDate *time.Time      `json:"transaction_date,omitempty"`
	SourceEntityID  *uuid.UUID      `json:"source_entity_id,omitempty"`
	TargetEntityID  *uuid.UUID      `json:"target_entity_id,omitempty"`
	Currency        string          `json:"currency"`
	SmartCode       string          `json:"smart_code" binding:"required"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key"`

	Lines []lineSpec `json:"lines" binding:"required,min=1"`
}

type lineSpec struct {
	LineNumber int             `json:"line_number"`
	LineType   string          `json:"line_type" binding:"required"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
	LineAmount decimal.Decimal `json:"line_amount"`
	SmartCode  string          `json:"smart_code" binding:"required"`
	LineData   json.RawMessage `json:"line_data,omitempty"`
}

type transactionReverseRequest struct {
	requestContext

	TransactionID uuid.UUID `json:"transaction_id" binding:"required"`
	Reason        string    `json:"reason"`
}

type organizationCreateRequest struct {
	ActorUserID      string          `json:"actor_user_id"`
	OrganizationName string          `json:"organization_name" binding:"required"`
	OrganizationCode string          `json:"organization_code" binding:"required"`
	Settings         json.RawMessage `json:"settings,omitempty"`
}

func (r *entityUpsertRequest) toParams() engine.EntityUpsertParams {
	return engine.EntityUpsertParams{
		EntityID:             r.EntityID,
		EntityType:           r.EntityType,
		EntityName:           r.EntityName,
		EntityCode:           r.EntityCode,
		SmartCode:            r.SmartCode,
		Status:               r.Status,
		Metadata:             r.Metadata,
		DynamicFields:        toFieldSpecs(r.DynamicFields),
		Relationships:        toRelationshipSpecs(r.Relationships),
		IncludeDynamic:       r.IncludeDynamic,
		IncludeRelationships: r.IncludeRelationships,
	}
}

func toFieldSpecs(in map[string]fieldSpec) map[string]engine.FieldSpec {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]engine.FieldSpec, len(in))
	for name, spec := range in {
		out[name] = engine.FieldSpec{
			Type:      spec.Type,
			Value:     spec.Value,
			SmartCode: spec.SmartCode,
		}
	}
	return out
}

func toRelationshipSpecs(in []relationshipSpec) []engine.RelationshipSpec {
	if len(in) == 0 {
		return nil
	}
	out := make([]engine.RelationshipSpec, 0, len(in))
	for _, spec := range in {
		out = append(out, engine.RelationshipSpec{
			ToEntityID:       spec.ToEntityID,
			RelationshipType: spec.RelationshipType,
			RelationshipData: spec.RelationshipData,
			SmartCode:        spec.SmartCode,
		})
	}
	return out
}

func (r *transactionEmitRequest) toParams() engine.TransactionEmitParams {
	params := engine.TransactionEmitParams{
		TransactionType: r.TransactionType,
		TransactionCode: r.TransactionCode,
		TransactionDate: r.TransactionDate,
		SourceEntityID:  r.SourceEntityID,
		TargetEntityID:  r.TargetEntityID,
		Currency:        r.Currency,
		SmartCode:       r.SmartCode,
		Metadata:        r.Metadata,
		IdempotencyKey:  r.IdempotencyKey,
	}
	for _, spec := range r.Lines {
		params.Lines = append(params.Lines, engine.LineSpec{
			LineNumber: spec.LineNumber,
			LineType:   spec.LineType,
			EntityID:   spec.EntityID,
			Quantity:   spec.Quantity,
			UnitAmount: spec.UnitAmount,
			LineAmount: spec.LineAmount,
			SmartCode:  spec.SmartCode,
			LineData:   spec.LineData,
		})
	}
	return params
}
