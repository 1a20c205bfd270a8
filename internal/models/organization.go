package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant boundary. Every other record in the system
// carries exactly one organization id; nothing is ever read or written
// across that boundary.
type Organization struct {
	ID               uuid.UUID       `json:"id"`
	OrganizationName string          `json:"organization_name"`
	OrganizationCode string          `json:"organization_code"`
	Settings         json.RawMessage `json:"settings,omitempty"`
	Status           string          `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}
