package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Relationship is a directed typed edge between two entities. Both
// endpoints must belong to the same organization as the edge itself.
// Deactivation is a soft update; edges are never deleted.
type Relationship struct {
	ID               uuid.UUID       `json:"id"`
	OrganizationID   uuid.UUID       `json:"organization_id"`
	FromEntityID     uuid.UUID       `json:"from_entity_id"`
	ToEntityID       uuid.UUID       `json:"to_entity_id"`
	RelationshipType string          `json:"relationship_type"`
	RelationshipData json.RawMessage `json:"relationship_data,omitempty"`
	SmartCode        string          `json:"smart_code"`
	IsActive         bool            `json:"is_active"`
	EffectiveDate    time.Time       `json:"effective_date"`
	ExpirationDate   *time.Time      `json:"expiration_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}
