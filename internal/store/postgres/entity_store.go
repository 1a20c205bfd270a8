package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// helpers work inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EntityStore implements store.EntityStore using PostgreSQL.
type EntityStore struct {
	pool *pgxpool.Pool
}

// NewEntityStore creates a new PostgreSQL-backed entity store.
func NewEntityStore(pool *pgxpool.Pool) *EntityStore {
	return &EntityStore{pool: pool}
}

const entityColumns = `
	id, organization_id, entity_type, entity_name,
	COALESCE(entity_code, ''), smart_code, status, metadata,
	created_at, updated_at, created_by, updated_by
`

// Upsert applies an entity bundle in one database transaction: the entity
// write, its dynamic fields, and any nested relationships either all land
// or none do.
func (s *EntityStore) Upsert(ctx context.Context, bundle *store.EntityUpsert) (*models.Entity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	entity, err := s.upsertEntity(ctx, tx, bundle.Entity)
	if err != nil {
		return nil, err
	}

	for _, field := range bundle.DynamicFields {
		field.EntityID = entity.ID
		field.OrganizationID = entity.OrganizationID
	}
	if err := s.setDynamicFields(ctx, tx, bundle.DynamicFields); err != nil {
		return nil, err
	}

	for _, rel := range bundle.Relationships {
		if rel.FromEntityID == uuid.Nil {
			rel.FromEntityID = entity.ID
		}
		rel.OrganizationID = entity.OrganizationID
		if err := insertRelationship(ctx, tx, rel); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPostgresError(err)
	}

	log.Debug().
		Str("entity_id", entity.ID.String()).
		Str("entity_type", entity.EntityType).
		Int("dynamic_fields", len(bundle.DynamicFields)).
		Int("relationships", len(bundle.Relationships)).
		Msg("Upserted entity bundle")

	return entity, nil
}

func (s *EntityStore) upsertEntity(ctx context.Context, q querier, in *models.Entity) (*models.Entity, error) {
	if in.ID != uuid.Nil {
		return s.updateEntity(ctx, q, in)
	}

	in.ID = uuid.Must(uuid.NewV7())

	if in.EntityCode != "" {
		// Converge on the natural key: a racing insert of the same
		// logical entity becomes an update of the winner's row.
		query := `
			INSERT INTO core_entities (
				id, organization_id, entity_type, entity_name, entity_code,
				smart_code, status, metadata,
				created_at, updated_at, created_by, updated_by
			) VALUES (
				$1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'active'), $8, $9, $10, $11, $12
			)
			ON CONFLICT (organization_id, entity_type, entity_code) WHERE status <> 'deleted'
			DO UPDATE SET
				entity_name = EXCLUDED.entity_name,
				smart_code = EXCLUDED.smart_code,
				status = COALESCE(NULLIF($7, ''), core_entities.status),
				metadata = COALESCE(EXCLUDED.metadata, core_entities.metadata),
				updated_at = EXCLUDED.updated_at,
				updated_by = EXCLUDED.updated_by
			RETURNING ` + entityColumns

		row := q.QueryRow(ctx, query,
			in.ID, in.OrganizationID, in.EntityType, in.EntityName, in.EntityCode,
			in.SmartCode, in.Status, in.Metadata,
			in.CreatedAt, in.UpdatedAt, in.CreatedBy, in.UpdatedBy,
		)
		return scanEntity(row)
	}

	query := `
		INSERT INTO core_entities (
			id, organization_id, entity_type, entity_name, entity_code,
			smart_code, status, metadata,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, NULL, $5, COALESCE(NULLIF($6, ''), 'active'), $7, $8, $9, $10, $11
		)
		RETURNING ` + entityColumns

	row := q.QueryRow(ctx, query,
		in.ID, in.OrganizationID, in.EntityType, in.EntityName,
		in.SmartCode, in.Status, in.Metadata,
		in.CreatedAt, in.UpdatedAt, in.CreatedBy, in.UpdatedBy,
	)
	return scanEntity(row)
}

func (s *EntityStore) updateEntity(ctx context.Context, q querier, in *models.Entity) (*models.Entity, error) {
	query := `
		UPDATE core_entities SET
			entity_name = $3,
			entity_code = COALESCE(NULLIF($4, ''), entity_code),
			smart_code = $5,
			status = COALESCE(NULLIF($6, ''), status),
			metadata = COALESCE($7, metadata),
			updated_at = $8,
			updated_by = $9
		WHERE id = $1
		  AND organization_id = $2
		  AND status <> 'deleted'
		RETURNING ` + entityColumns

	row := q.QueryRow(ctx, query,
		in.ID, in.OrganizationID,
		in.EntityName, in.EntityCode, in.SmartCode, in.Status, in.Metadata,
		in.UpdatedAt, in.UpdatedBy,
	)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, err
	}
	return entity, nil
}

// Get retrieves one entity scoped to the organization.
func (s *EntityStore) Get(ctx context.Context, orgID, entityID uuid.UUID) (*models.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM core_entities
		WHERE id = $1 AND organization_id = $2 AND status <> 'deleted'
	`

	entity, err := scanEntity(s.pool.QueryRow(ctx, query, entityID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, mapPostgresError(err)
	}
	return entity, nil
}

// List returns a page of entities matching the filter, newest first.
// Unknown filter combinations yield an empty page, never an error.
func (s *EntityStore) List(ctx context.Context, orgID uuid.UUID, filter store.EntityFilter, limit, offset int) ([]*models.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM core_entities
		WHERE organization_id = $1
	`

	args := []any{orgID}
	argIdx := 2

	if filter.EntityID != nil {
		query += fmt.Sprintf(" AND id = $%d", argIdx)
		args = append(args, *filter.EntityID)
		argIdx++
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, filter.EntityType)
		argIdx++
	}
	if filter.EntityCode != "" {
		query += fmt.Sprintf(" AND entity_code = $%d", argIdx)
		args = append(args, filter.EntityCode)
		argIdx++
	}
	if filter.SmartCode != "" {
		query += fmt.Sprintf(" AND smart_code = $%d", argIdx)
		args = append(args, filter.SmartCode)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	} else {
		query += " AND status <> 'deleted'"
	}
	if filter.TextSearch != "" {
		query += fmt.Sprintf(" AND (entity_name ILIKE $%d OR entity_code ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+filter.TextSearch+"%")
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return entities, nil
}

// SetDynamicFields upserts the given fields in one database transaction.
func (s *EntityStore) SetDynamicFields(ctx context.Context, fields []*models.DynamicField) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	// Verify the target entities exist in the caller's organization; the
	// FK alone cannot distinguish a missing entity from a cross-tenant
	// one.
	for _, field := range fields {
		var orgID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT organization_id FROM core_entities WHERE id = $1 AND status <> 'deleted'`,
			field.EntityID,
		).Scan(&orgID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrEntityNotFound
			}
			return mapPostgresError(err)
		}
		if orgID != field.OrganizationID {
			return store.ErrWrongOrganization
		}
	}

	if err := s.setDynamicFields(ctx, tx, fields); err != nil {
		return err
	}

	return mapPostgresError(tx.Commit(ctx))
}

func (s *EntityStore) setDynamicFields(ctx context.Context, tx pgx.Tx, fields []*models.DynamicField) error {
	if len(fields) == 0 {
		return nil
	}

	query := `
		INSERT INTO core_dynamic_data (
			id, organization_id, entity_id, field_name, field_type,
			value_text, value_number, value_boolean, value_date, value_json,
			smart_code, created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (entity_id, field_name)
		DO UPDATE SET
			field_type = EXCLUDED.field_type,
			value_text = EXCLUDED.value_text,
			value_number = EXCLUDED.value_number,
			value_boolean = EXCLUDED.value_boolean,
			value_date = EXCLUDED.value_date,
			value_json = EXCLUDED.value_json,
			smart_code = EXCLUDED.smart_code,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`

	batch := &pgx.Batch{}
	for _, field := range fields {
		if field.ID == uuid.Nil {
			field.ID = uuid.Must(uuid.NewV7())
		}
		batch.Queue(query,
			field.ID, field.OrganizationID, field.EntityID, field.FieldName, field.FieldType,
			field.ValueText, field.ValueNumber, field.ValueBoolean, field.ValueDate, field.ValueJSON,
			field.SmartCode, field.CreatedAt, field.UpdatedAt, field.CreatedBy, field.UpdatedBy,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(fields); i++ {
		if _, err := results.Exec(); err != nil {
			return mapPostgresError(fmt.Errorf("failed to upsert dynamic field %d: %w", i, err))
		}
	}

	return nil
}

// GetDynamicFields returns all dynamic fields for an entity, ordered by
// field name.
func (s *EntityStore) GetDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]*models.DynamicField, error) {
	query := `
		SELECT id, organization_id, entity_id, field_name, field_type,
		       value_text, value_number, value_boolean, value_date, value_json,
		       smart_code, created_at, updated_at, created_by, updated_by
		FROM core_dynamic_data
		WHERE organization_id = $1 AND entity_id = $2
		ORDER BY field_name ASC
	`

	rows, err := s.pool.Query(ctx, query, orgID, entityID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var fields []*models.DynamicField
	for rows.Next() {
		var field models.DynamicField
		var number decimal.NullDecimal

		err := rows.Scan(
			&field.ID, &field.OrganizationID, &field.EntityID, &field.FieldName, &field.FieldType,
			&field.ValueText, &number, &field.ValueBoolean, &field.ValueDate, &field.ValueJSON,
			&field.SmartCode, &field.CreatedAt, &field.UpdatedAt, &field.CreatedBy, &field.UpdatedBy,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		if number.Valid {
			field.ValueNumber = &number.Decimal
		}
		fields = append(fields, &field)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return fields, nil
}

// scanEntity reads one entity row.
func scanEntity(row pgx.Row) (*models.Entity, error) {
	var entity models.Entity
	err := row.Scan(
		&entity.ID,
		&entity.OrganizationID,
		&entity.EntityType,
		&entity.EntityName,
		&entity.EntityCode,
		&entity.SmartCode,
		&entity.Status,
		&entity.Metadata,
		&entity.CreatedAt,
		&entity.UpdatedAt,
		&entity.CreatedBy,
		&entity.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// insertRelationship writes one edge after a fail-closed endpoint check.
// Shared with the relationship store; runs inside the caller's
// transaction.
func insertRelationship(ctx context.Context, q querier, rel *models.Relationship) error {
	for _, endpointID := range []uuid.UUID{rel.FromEntityID, rel.ToEntityID} {
		var orgID uuid.UUID
		err := q.QueryRow(ctx,
			`SELECT organization_id FROM core_entities WHERE id = $1 AND status <> 'deleted'`,
			endpointID,
		).Scan(&orgID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrEndpointNotFound
			}
			return mapPostgresError(err)
		}
		if orgID != rel.OrganizationID {
			return store.ErrWrongOrganization
		}
	}

	if rel.ID == uuid.Nil {
		rel.ID = uuid.Must(uuid.NewV7())
	}

	query := `
		INSERT INTO core_relationships (
			id, organization_id, from_entity_id, to_entity_id,
			relationship_type, relationship_data, smart_code,
			is_active, effective_date, expiration_date,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := q.Exec(ctx, query,
		rel.ID, rel.OrganizationID, rel.FromEntityID, rel.ToEntityID,
		rel.RelationshipType, rel.RelationshipData, rel.SmartCode,
		rel.IsActive, rel.EffectiveDate, rel.ExpirationDate,
		rel.CreatedAt, rel.UpdatedAt, rel.CreatedBy, rel.UpdatedBy,
	)
	return mapPostgresError(err)
}
