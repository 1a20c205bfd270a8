// Package tenant carries the explicit per-call tenant context. The engine
// never reads an organization or actor from ambient state; both are passed
// into every operation and validated up front.
package tenant

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrMissingOrganization is returned when the organization id is
	// absent or not a well-formed identifier.
	ErrMissingOrganization = errors.New("missing or invalid organization id")

	// ErrMissingActor is returned when the acting user id is absent or
	// not a well-formed identifier.
	ErrMissingActor = errors.New("missing or invalid actor user id")
)

// Context identifies the organization and acting user for one engine call.
// Nothing executes without both.
type Context struct {
	OrganizationID uuid.UUID
	ActorUserID    uuid.UUID
}

// New parses and validates a tenant context from raw identifiers.
func New(organizationID, actorUserID string) (Context, error) {
	orgID, err := uuid.Parse(organizationID)
	if err != nil || orgID == uuid.Nil {
		return Context{}, ErrMissingOrganization
	}

	actorID, err := uuid.Parse(actorUserID)
	if err != nil || actorID == uuid.Nil {
		return Context{}, ErrMissingActor
	}

	return Context{OrganizationID: orgID, ActorUserID: actorID}, nil
}

// Validate checks an already-constructed context.
func (c Context) Validate() error {
	if c.OrganizationID == uuid.Nil {
		return ErrMissingOrganization
	}
	if c.ActorUserID == uuid.Nil {
		return ErrMissingActor
	}
	return nil
}
