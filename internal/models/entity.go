package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entity statuses. Deleted entities are soft-deleted; the row stays while
// anything references it.
const (
	EntityStatusActive   = "active"
	EntityStatusArchived = "archived"
	EntityStatusDeleted  = "deleted"
)

// Entity is a polymorphic business object. The entity_type tag is a
// free-form domain discriminator ("customer", "gl_account", ...); anything
// the base columns cannot hold lives in dynamic fields or the opaque
// metadata document.
type Entity struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	EntityType     string          `json:"entity_type"`
	EntityName     string          `json:"entity_name"`
	EntityCode     string          `json:"entity_code,omitempty"`
	SmartCode      string          `json:"smart_code"`
	Status         string          `json:"status"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`

	// Hydrated on request, not stored on the entity row itself.
	DynamicFields []*DynamicField `json:"dynamic_fields,omitempty"`
	Relationships []*Relationship `json:"relationships,omitempty"`
}

// Dynamic field value types.
const (
	FieldTypeText    = "text"
	FieldTypeNumber  = "number"
	FieldTypeBoolean = "boolean"
	FieldTypeDate    = "date"
	FieldTypeJSON    = "json"
)

// DynamicField is one typed value attached to one entity (EAV extension).
// Exactly one value column is populated, matching FieldType. At most one
// live row exists per (entity_id, field_name); writes are last-write-wins.
type DynamicField struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	EntityID       uuid.UUID `json:"entity_id"`
	FieldName      string    `json:"field_name"`
	FieldType      string    `json:"field_type"`
	SmartCode      string    `json:"smart_code"`

	ValueText    *string          `json:"value_text,omitempty"`
	ValueNumber  *decimal.Decimal `json:"value_number,omitempty"`
	ValueBoolean *bool            `json:"value_boolean,omitempty"`
	ValueDate    *time.Time       `json:"value_date,omitempty"`
	ValueJSON    json.RawMessage  `json:"value_json,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}
