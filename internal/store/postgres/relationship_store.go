package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// RelationshipStore implements store.RelationshipStore using PostgreSQL.
type RelationshipStore struct {
	pool *pgxpool.Pool
}

// NewRelationshipStore creates a new PostgreSQL-backed relationship store.
func NewRelationshipStore(pool *pgxpool.Pool) *RelationshipStore {
	return &RelationshipStore{pool: pool}
}

const relationshipColumns = `
	id, organization_id, from_entity_id, to_entity_id,
	relationship_type, relationship_data, smart_code,
	is_active, effective_date, expiration_date,
	created_at, updated_at, created_by, updated_by
`

// Upsert inserts a relationship row. The endpoint check and the insert
// run in one transaction so the edge cannot land against an entity
// deleted concurrently.
func (s *RelationshipStore) Upsert(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := insertRelationship(ctx, tx, rel); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPostgresError(err)
	}

	log.Debug().
		Str("relationship_id", rel.ID.String()).
		Str("relationship_type", rel.RelationshipType).
		Msg("Upserted relationship")

	clone := *rel
	return &clone, nil
}

// Deactivate soft-updates an edge; the row is never removed.
func (s *RelationshipStore) Deactivate(ctx context.Context, orgID, relID, actorID uuid.UUID, at time.Time) (*models.Relationship, error) {
	query := `
		UPDATE core_relationships SET
			is_active = FALSE,
			expiration_date = $3,
			updated_at = $3,
			updated_by = $4
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + relationshipColumns

	rel, err := scanRelationship(s.pool.QueryRow(ctx, query, relID, orgID, at, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRelationshipNotFound
		}
		return nil, mapPostgresError(err)
	}

	log.Debug().
		Str("relationship_id", relID.String()).
		Msg("Deactivated relationship")

	return rel, nil
}

// ListByEntity returns edges touching an entity in either direction,
// oldest first.
func (s *RelationshipStore) ListByEntity(ctx context.Context, orgID, entityID uuid.UUID, relationshipType string, activeOnly bool) ([]*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM core_relationships
		WHERE organization_id = $1
		  AND (from_entity_id = $2 OR to_entity_id = $2)
	`

	args := []any{orgID, entityID}
	if relationshipType != "" {
		query += " AND relationship_type = $3"
		args = append(args, relationshipType)
	}
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var rels []*models.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		rels = append(rels, rel)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return rels, nil
}

func scanRelationship(row pgx.Row) (*models.Relationship, error) {
	var rel models.Relationship
	err := row.Scan(
		&rel.ID,
		&rel.OrganizationID,
		&rel.FromEntityID,
		&rel.ToEntityID,
		&rel.RelationshipType,
		&rel.RelationshipData,
		&rel.SmartCode,
		&rel.IsActive,
		&rel.EffectiveDate,
		&rel.ExpirationDate,
		&rel.CreatedAt,
		&rel.UpdatedAt,
		&rel.CreatedBy,
		&rel.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}
