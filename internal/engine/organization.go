package engine

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/tenant"
	"github.com/rs/zerolog/log"
)

// OrganizationCreateParams are the inputs for organization.create.
type OrganizationCreateParams struct {
	OrganizationName string
	OrganizationCode string
	Settings         json.RawMessage
}

// OrganizationCreate provisions a new tenant. The acting user comes from
// the caller's resolved identity; the new organization id is generated
// here and returned.
func (e *Engine) OrganizationCreate(ctx context.Context, actorUserID uuid.UUID, params OrganizationCreateParams) (*models.Organization, error) {
	if actorUserID == uuid.Nil {
		return nil, NewError(CodeMissingActor, "actor user id is required")
	}

	now := e.now()
	org := &models.Organization{
		ID:               uuid.Must(uuid.NewV7()),
		OrganizationName: params.OrganizationName,
		OrganizationCode: params.OrganizationCode,
		Settings:         params.Settings,
		Status:           "active",
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        actorUserID,
		UpdatedBy:        actorUserID,
	}

	if err := e.stores.Organizations.Create(ctx, org); err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}

	log.Info().
		Str("organization_id", org.ID.String()).
		Str("organization_code", org.OrganizationCode).
		Msg("Created organization")

	return org, nil
}

// OrganizationGet reads the caller's own organization.
func (e *Engine) OrganizationGet(ctx context.Context, tc tenant.Context) (*models.Organization, error) {
	if err := requireTenant(tc); err != nil {
		return nil, err
	}
	org, err := e.stores.Organizations.Get(ctx, tc.OrganizationID)
	if err != nil {
		return nil, mapStoreError(err, CodeNotFound)
	}
	return org, nil
}
