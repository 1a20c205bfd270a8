package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/smartcode"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/heraerp/hera-engine/internal/telemetry"
	"github.com/heraerp/hera-engine/internal/tenant"
	"github.com/rs/zerolog/log"
)

// RelationshipUpsertParams are the inputs for relationship.upsert.
type RelationshipUpsertParams struct {
	FromEntityID     uuid.UUID
	ToEntityID       uuid.UUID
	RelationshipType string
	RelationshipData json.RawMessage
	SmartCode        string
	IsActive         *bool      // defaults to true
	EffectiveDate    *time.Time // defaults to now
}

// RelationshipUpsert links two entities with a typed directed edge. Both
// endpoints must exist and share the caller's organization. The engine
// does not enforce at-most-one-active-edge per type; callers wanting that
// must deactivate prior edges first.
func (e *Engine) RelationshipUpsert(ctx context.Context, tc tenant.Context, params RelationshipUpsertParams) (*models.Relationship, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	if _, err := smartcode.Validate(params.SmartCode); err != nil {
		return nil, WrapError(CodeInvalidSmartCode, err, "relationship smart code")
	}

	now := e.now()
	rel := &models.Relationship{
		OrganizationID:   tc.OrganizationID,
		FromEntityID:     params.FromEntityID,
		ToEntityID:       params.ToEntityID,
		RelationshipType: params.RelationshipType,
		RelationshipData: params.RelationshipData,
		SmartCode:        params.SmartCode,
		IsActive:         true,
		EffectiveDate:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        tc.ActorUserID,
		UpdatedBy:        tc.ActorUserID,
	}
	if params.IsActive != nil {
		rel.IsActive = *params.IsActive
	}
	if params.EffectiveDate != nil {
		rel.EffectiveDate = *params.EffectiveDate
	}

	result, err := e.stores.Relationships.Upsert(ctx, rel)
	if err != nil {
		if errors.Is(err, store.ErrWrongOrganization) {
			telemetry.GetMetrics().CrossTenantViolationsTotal.Add(ctx, 1)
		}
		return nil, mapStoreError(err, CodeEndpointNotFound)
	}

	telemetry.GetMetrics().RelationshipsUpsertedTotal.Add(ctx, 1)
	log.Debug().
		Str("organization_id", tc.OrganizationID.String()).
		Str("relationship_id", result.ID.String()).
		Str("relationship_type", result.RelationshipType).
		Msg("Upserted relationship")

	return result, nil
}

// RelationshipDeactivate soft-updates an edge: is_active=false with the
// expiration date set. The row is preserved for history, never deleted.
func (e *Engine) RelationshipDeactivate(ctx context.Context, tc tenant.Context, relationshipID uuid.UUID) (*models.Relationship, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}

	result, err := e.stores.Relationships.Deactivate(ctx, tc.OrganizationID, relationshipID, tc.ActorUserID, e.now())
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	telemetry.GetMetrics().RelationshipsDeactivatedTotal.Add(ctx, 1)
	log.Debug().
		Str("organization_id", tc.OrganizationID.String()).
		Str("relationship_id", relationshipID.String()).
		Msg("Deactivated relationship")

	return result, nil
}

// buildRelationship converts a nested spec from entity.upsert into a row
// anchored at the upserted entity (filled in by the store once the id is
// known).
func (e *Engine) buildRelationship(tc tenant.Context, spec RelationshipSpec, now time.Time) (*models.Relationship, error) {
	if _, err := smartcode.Validate(spec.SmartCode); err != nil {
		return nil, WrapError(CodeInvalidSmartCode, err, "relationship smart code")
	}
	return &models.Relationship{
		OrganizationID:   tc.OrganizationID,
		ToEntityID:       spec.ToEntityID,
		RelationshipType: spec.RelationshipType,
		RelationshipData: spec.RelationshipData,
		SmartCode:        spec.SmartCode,
		IsActive:         true,
		EffectiveDate:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        tc.ActorUserID,
		UpdatedBy:        tc.ActorUserID,
	}, nil
}
