// Package store defines the storage interfaces for the six universal
// relations, plus the sentinel errors shared by all implementations.
// Postgres and in-memory implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrEntityNotFound            = errors.New("entity not found")
	ErrEndpointNotFound          = errors.New("relationship endpoint not found")
	ErrWrongOrganization         = errors.New("record belongs to a different organization")
	ErrRelationshipNotFound      = errors.New("relationship not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrDuplicateTransactionCode  = errors.New("transaction code already exists")
	ErrDuplicateIdempotencyKey   = errors.New("idempotency key already used")
)

// EntityFilter narrows entity.read queries. Zero-valued fields are ignored;
// a filter that matches nothing yields an empty page, never an error.
type EntityFilter struct {
	EntityID   *uuid.UUID
	EntityType string
	EntityCode string
	SmartCode  string
	Status     string
	TextSearch string
}

// EntityUpsert bundles an entity write with the dynamic fields and
// relationships that must land in the same unit of work. Nested
// relationships with a zero FromEntityID are anchored to the upserted
// entity once its id is known.
type EntityUpsert struct {
	Entity        *models.Entity
	DynamicFields []*models.DynamicField
	Relationships []*models.Relationship
}

// EntityStore persists polymorphic business objects and their dynamic
// attribute rows.
type EntityStore interface {
	// Upsert applies the bundle atomically. When Entity.ID is set the row
	// is updated in place; otherwise the write converges on the
	// (organization_id, entity_type, entity_code) natural key, inserting
	// a new row only when no live match exists.
	Upsert(ctx context.Context, bundle *EntityUpsert) (*models.Entity, error)

	// Get retrieves one entity scoped to the organization.
	Get(ctx context.Context, orgID, entityID uuid.UUID) (*models.Entity, error)

	// List returns a page of entities matching the filter.
	List(ctx context.Context, orgID uuid.UUID, filter EntityFilter, limit, offset int) ([]*models.Entity, error)

	// SetDynamicFields upserts the given fields all-or-nothing. Each
	// write replaces any prior value for (entity_id, field_name).
	SetDynamicFields(ctx context.Context, fields []*models.DynamicField) error

	// GetDynamicFields returns all dynamic fields for an entity.
	GetDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]*models.DynamicField, error)
}

// RelationshipStore persists typed directed edges between entities.
type RelationshipStore interface {
	// Upsert inserts a relationship row. Duplicate active edges of the
	// same type are tolerated; deduplication is a caller concern.
	Upsert(ctx context.Context, rel *models.Relationship) (*models.Relationship, error)

	// Deactivate soft-updates an edge (is_active=false, expiration set).
	Deactivate(ctx context.Context, orgID, relID, actorID uuid.UUID, at time.Time) (*models.Relationship, error)

	// ListByEntity returns edges touching an entity in either direction,
	// optionally narrowed by type and active flag.
	ListByEntity(ctx context.Context, orgID, entityID uuid.UUID, relationshipType string, activeOnly bool) ([]*models.Relationship, error)
}

// TransactionFilter narrows transaction list queries.
type TransactionFilter struct {
	TransactionType string
	TransactionCode string
	Status          string
	SmartCode       string
	EntityID        *uuid.UUID
	DateFrom        *time.Time
	DateTo          *time.Time
}

// TransactionStore persists transaction headers and their lines.
type TransactionStore interface {
	// Emit persists the header and all lines in one unit of work.
	Emit(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)

	// GetByIdempotencyKey returns a prior transaction emitted with the
	// same key, or (nil, nil) when none exists.
	GetByIdempotencyKey(ctx context.Context, orgID uuid.UUID, key string) (*models.Transaction, error)

	// Get retrieves one transaction with its lines, ordered by line number.
	Get(ctx context.Context, orgID, txnID uuid.UUID) (*models.Transaction, error)

	// List returns a page of transaction headers matching the filter.
	List(ctx context.Context, orgID uuid.UUID, filter TransactionFilter, limit, offset int) ([]*models.Transaction, error)
}

// OrganizationStore persists tenant records.
type OrganizationStore interface {
	Create(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
}

// Stores groups the per-relation stores sharing one backend.
type Stores struct {
	Organizations OrganizationStore
	Entities      EntityStore
	Relationships RelationshipStore
	Transactions  TransactionStore
}
