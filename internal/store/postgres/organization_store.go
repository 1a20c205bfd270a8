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

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with the other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{pool: pool}
}

const organizationColumns = `
	id, organization_name, organization_code, settings, status,
	created_at, updated_at, created_by, updated_by
`

// Create creates a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO core_organizations (
			id, organization_name, organization_code, settings, status,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.ID,
		org.OrganizationName,
		org.OrganizationCode,
		org.Settings,
		org.Status,
		org.CreatedAt,
		org.UpdatedAt,
		org.CreatedBy,
		org.UpdatedBy,
	)

	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("organization_id", org.ID.String()).
		Str("organization_code", org.OrganizationCode).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM core_organizations WHERE id = $1`
	return s.getOne(ctx, query, orgID)
}

// GetByCode retrieves an organization by its unique code.
func (s *OrganizationStore) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM core_organizations WHERE organization_code = $1`
	return s.getOne(ctx, query, code)
}

func (s *OrganizationStore) getOne(ctx context.Context, query string, arg any) (*models.Organization, error) {
	var org models.Organization
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&org.ID,
		&org.OrganizationName,
		&org.OrganizationCode,
		&org.Settings,
		&org.Status,
		&org.CreatedAt,
		&org.UpdatedAt,
		&org.CreatedBy,
		&org.UpdatedBy,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}
