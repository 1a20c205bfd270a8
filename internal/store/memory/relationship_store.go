package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
)

// RelationshipStore implements store.RelationshipStore using in-memory storage.
type RelationshipStore struct {
	db *db
}

// Upsert inserts a relationship row after verifying both endpoints exist
// and share the edge's organization.
func (s *RelationshipStore) Upsert(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, endpointID := range []uuid.UUID{rel.FromEntityID, rel.ToEntityID} {
		entity, ok := s.db.entities[endpointID]
		if !ok || entity.Status == models.EntityStatusDeleted {
			return nil, store.ErrEndpointNotFound
		}
		if entity.OrganizationID != rel.OrganizationID {
			return nil, store.ErrWrongOrganization
		}
	}

	clone := cloneRelationship(rel)
	if clone.ID == uuid.Nil {
		clone.ID = uuid.Must(uuid.NewV7())
	}
	s.db.relationships[clone.ID] = clone

	return cloneRelationship(clone), nil
}

// Deactivate soft-updates an edge; the row is never removed.
func (s *RelationshipStore) Deactivate(ctx context.Context, orgID, relID, actorID uuid.UUID, at time.Time) (*models.Relationship, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rel, ok := s.db.relationships[relID]
	if !ok || rel.OrganizationID != orgID {
		return nil, store.ErrRelationshipNotFound
	}

	rel.IsActive = false
	rel.ExpirationDate = &at
	rel.UpdatedAt = at
	rel.UpdatedBy = actorID

	return cloneRelationship(rel), nil
}

// ListByEntity returns edges touching an entity in either direction.
func (s *RelationshipStore) ListByEntity(ctx context.Context, orgID, entityID uuid.UUID, relationshipType string, activeOnly bool) ([]*models.Relationship, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.Relationship
	for _, rel := range s.db.relationships {
		if rel.OrganizationID != orgID {
			continue
		}
		if rel.FromEntityID != entityID && rel.ToEntityID != entityID {
			continue
		}
		if relationshipType != "" && rel.RelationshipType != relationshipType {
			continue
		}
		if activeOnly && !rel.IsActive {
			continue
		}
		result = append(result, cloneRelationship(rel))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
