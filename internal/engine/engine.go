// Package engine is the Universal Data Engine: the single orchestrator
// through which entities, dynamic attributes, relationships and
// transactions are written and read. Every operation takes an explicit
// tenant context, validates smart codes up front, stamps the acting user
// on every write, and delegates multi-row writes to the store as one
// atomic unit.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/smartcode"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/heraerp/hera-engine/internal/telemetry"
	"github.com/heraerp/hera-engine/internal/tenant"
	"github.com/rs/zerolog/log"
)

// Engine coordinates the per-relation stores behind the externally
// callable operations. It holds no mutable state of its own; all state
// lives in the backing store.
type Engine struct {
	stores store.Stores
	now    func() time.Time
}

// New creates an engine over the given stores.
func New(stores store.Stores) *Engine {
	return &Engine{
		stores: stores,
		now:    time.Now,
	}
}

// requireTenant validates the tenant context, mapping failures to the
// stable contract codes. No operation proceeds without it.
func requireTenant(tc tenant.Context) error {
	switch err := tc.Validate(); err {
	case nil:
		return nil
	case tenant.ErrMissingActor:
		return WrapError(CodeMissingActor, err, "actor user id is required")
	default:
		return WrapError(CodeMissingTenantContext, err, "organization id is required")
	}
}

// EntityUpsertParams are the inputs for entity.upsert.
type EntityUpsertParams struct {
	EntityID   *uuid.UUID
	EntityType string
	EntityName string
	EntityCode string
	SmartCode  string
	Status     string
	Metadata   json.RawMessage

	// DynamicFields and Relationships are written atomically with the
	// entity: either the whole bundle lands or nothing does.
	DynamicFields map[string]FieldSpec
	Relationships []RelationshipSpec

	IncludeDynamic       bool
	IncludeRelationships bool
}

// RelationshipSpec describes an edge created as part of an entity upsert.
// The from endpoint is the upserted entity itself.
type RelationshipSpec struct {
	ToEntityID       uuid.UUID
	RelationshipType string
	RelationshipData json.RawMessage
	SmartCode        string
}

// EntityUpsert creates or updates an entity. Resolution order: explicit
// entity id; else a live (entity_type, entity_code) match within the
// organization; else a fresh insert. Racing creates of the same logical
// entity converge to one row.
func (e *Engine) EntityUpsert(ctx context.Context, tc tenant.Context, params EntityUpsertParams) (*models.Entity, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	if _, err := smartcode.Validate(params.SmartCode); err != nil {
		return nil, WrapError(CodeInvalidSmartCode, err, "entity smart code")
	}

	now := e.now()
	entity := &models.Entity{
		OrganizationID: tc.OrganizationID,
		EntityType:     params.EntityType,
		EntityName:     params.EntityName,
		EntityCode:     params.EntityCode,
		SmartCode:      params.SmartCode,
		Status:         params.Status,
		Metadata:       params.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      tc.ActorUserID,
		UpdatedBy:      tc.ActorUserID,
	}
	if params.EntityID != nil {
		entity.ID = *params.EntityID
	}

	bundle := &store.EntityUpsert{Entity: entity}

	for name, spec := range params.DynamicFields {
		field, err := buildDynamicField(name, spec)
		if err != nil {
			return nil, err
		}
		field.OrganizationID = tc.OrganizationID
		stampField(field, tc.ActorUserID, now)
		bundle.DynamicFields = append(bundle.DynamicFields, field)
	}

	for _, spec := range params.Relationships {
		rel, err := e.buildRelationship(tc, spec, now)
		if err != nil {
			return nil, err
		}
		bundle.Relationships = append(bundle.Relationships, rel)
	}

	result, err := e.stores.Entities.Upsert(ctx, bundle)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	telemetry.GetMetrics().EntitiesUpsertedTotal.Add(ctx, 1)
	log.Debug().
		Str("organization_id", tc.OrganizationID.String()).
		Str("entity_id", result.ID.String()).
		Str("entity_type", result.EntityType).
		Str("smart_code", result.SmartCode).
		Msg("Upserted entity")

	if err := e.hydrate(ctx, tc, result, params.IncludeDynamic, params.IncludeRelationships); err != nil {
		return nil, err
	}
	return result, nil
}

// EntityReadParams are the inputs for entity.read.
type EntityReadParams struct {
	Filter               store.EntityFilter
	IncludeDynamic       bool
	IncludeRelationships bool
	Limit                int
	Offset               int
}

const defaultPageSize = 50

// EntityRead returns a page of entities. Filters that match nothing yield
// an empty page, never an error: reads are side-effect free and safe to
// poll.
func (e *Engine) EntityRead(ctx context.Context, tc tenant.Context, params EntityReadParams) ([]*models.Entity, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	entities, err := e.stores.Entities.List(ctx, tc.OrganizationID, params.Filter, limit, params.Offset)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	for _, entity := range entities {
		if err := e.hydrate(ctx, tc, entity, params.IncludeDynamic, params.IncludeRelationships); err != nil {
			return nil, err
		}
	}

	telemetry.GetMetrics().EntitiesReadTotal.Add(ctx, 1)
	return entities, nil
}

// DynamicSetParams are the inputs for dynamic.set. Fields maps field name
// to its typed spec; the batch applies all-or-nothing.
type DynamicSetParams struct {
	EntityID uuid.UUID
	Fields   map[string]FieldSpec
}

// DynamicSet writes typed dynamic attributes on an entity. Each write
// replaces any prior value for the field (last write wins, no history);
// a TYPE_MISMATCH on any field leaves every prior value untouched.
func (e *Engine) DynamicSet(ctx context.Context, tc tenant.Context, params DynamicSetParams) ([]*models.DynamicField, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}

	now := e.now()
	fields := make([]*models.DynamicField, 0, len(params.Fields))
	for name, spec := range params.Fields {
		field, err := buildDynamicField(name, spec)
		if err != nil {
			return nil, err
		}
		field.OrganizationID = tc.OrganizationID
		field.EntityID = params.EntityID
		stampField(field, tc.ActorUserID, now)
		fields = append(fields, field)
	}

	if err := e.stores.Entities.SetDynamicFields(ctx, fields); err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	telemetry.GetMetrics().DynamicFieldsSetTotal.Add(ctx, int64(len(fields)))
	log.Debug().
		Str("organization_id", tc.OrganizationID.String()).
		Str("entity_id", params.EntityID.String()).
		Int("field_count", len(fields)).
		Msg("Set dynamic fields")

	result, err := e.stores.Entities.GetDynamicFields(ctx, tc.OrganizationID, params.EntityID)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}
	return result, nil
}

// hydrate attaches dynamic fields and relationships to an entity result
// when requested.
func (e *Engine) hydrate(ctx context.Context, tc tenant.Context, entity *models.Entity, includeDynamic, includeRelationships bool) error {
	if includeDynamic {
		fields, err := e.stores.Entities.GetDynamicFields(ctx, tc.OrganizationID, entity.ID)
		if err != nil {
			return mapStoreError(err, CodeNotFound)
		}
		entity.DynamicFields = fields
	}
	if includeRelationships {
		rels, err := e.stores.Relationships.ListByEntity(ctx, tc.OrganizationID, entity.ID, "", false)
		if err != nil {
			return mapStoreError(err, CodeNotFound)
		}
		entity.Relationships = rels
	}
	return nil
}

func stampField(field *models.DynamicField, actor uuid.UUID, now time.Time) {
	field.CreatedAt = now
	field.UpdatedAt = now
	field.CreatedBy = actor
	field.UpdatedBy = actor
}
