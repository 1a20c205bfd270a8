package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
)

// EntityStore implements store.EntityStore using in-memory storage.
type EntityStore struct {
	db *db
}

// Upsert applies an entity bundle atomically. All validation happens
// before any map is mutated so a failed bundle leaves no partial state.
func (s *EntityStore) Upsert(ctx context.Context, bundle *store.EntityUpsert) (*models.Entity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	in := bundle.Entity
	var target *models.Entity

	switch {
	case in.ID != uuid.Nil:
		existing, ok := s.db.entities[in.ID]
		if !ok || existing.OrganizationID != in.OrganizationID || existing.Status == models.EntityStatusDeleted {
			return nil, store.ErrEntityNotFound
		}
		target = existing
	case in.EntityCode != "":
		target = s.findByNaturalKey(in.OrganizationID, in.EntityType, in.EntityCode)
	}

	// Validate nested relationship endpoints before mutating anything.
	for _, rel := range bundle.Relationships {
		if rel.ToEntityID == uuid.Nil {
			return nil, store.ErrEndpointNotFound
		}
		to, ok := s.db.entities[rel.ToEntityID]
		if !ok || to.Status == models.EntityStatusDeleted {
			return nil, store.ErrEndpointNotFound
		}
		if to.OrganizationID != in.OrganizationID {
			return nil, store.ErrWrongOrganization
		}
	}

	if target == nil {
		clone := *in
		if clone.ID == uuid.Nil {
			clone.ID = uuid.Must(uuid.NewV7())
		}
		if clone.Status == "" {
			clone.Status = models.EntityStatusActive
		}
		s.db.entities[clone.ID] = &clone
		target = &clone
	} else {
		target.EntityName = in.EntityName
		target.SmartCode = in.SmartCode
		if in.EntityCode != "" {
			target.EntityCode = in.EntityCode
		}
		if in.Status != "" {
			target.Status = in.Status
		}
		if in.Metadata != nil {
			target.Metadata = in.Metadata
		}
		target.UpdatedAt = in.UpdatedAt
		target.UpdatedBy = in.UpdatedBy
	}

	for _, field := range bundle.DynamicFields {
		fc := cloneField(field)
		if fc.ID == uuid.Nil {
			fc.ID = uuid.Must(uuid.NewV7())
		}
		fc.EntityID = target.ID
		fc.OrganizationID = target.OrganizationID
		s.upsertFieldLocked(fc)
	}

	for _, rel := range bundle.Relationships {
		rc := cloneRelationship(rel)
		if rc.ID == uuid.Nil {
			rc.ID = uuid.Must(uuid.NewV7())
		}
		if rc.FromEntityID == uuid.Nil {
			rc.FromEntityID = target.ID
		}
		rc.OrganizationID = target.OrganizationID
		s.db.relationships[rc.ID] = rc
	}

	return cloneEntity(target), nil
}

// Get retrieves one entity scoped to the organization.
func (s *EntityStore) Get(ctx context.Context, orgID, entityID uuid.UUID) (*models.Entity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	entity, ok := s.db.entities[entityID]
	if !ok || entity.OrganizationID != orgID || entity.Status == models.EntityStatusDeleted {
		return nil, store.ErrEntityNotFound
	}
	return cloneEntity(entity), nil
}

// List returns a page of entities matching the filter, newest first.
func (s *EntityStore) List(ctx context.Context, orgID uuid.UUID, filter store.EntityFilter, limit, offset int) ([]*models.Entity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var matched []*models.Entity
	for _, entity := range s.db.entities {
		if entity.OrganizationID != orgID {
			continue
		}
		if !entityMatches(entity, filter) {
			continue
		}
		matched = append(matched, entity)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	result := make([]*models.Entity, len(matched))
	for i, entity := range matched {
		result[i] = cloneEntity(entity)
	}
	return result, nil
}

// SetDynamicFields upserts the given fields all-or-nothing.
func (s *EntityStore) SetDynamicFields(ctx context.Context, fields []*models.DynamicField) error {
	if len(fields) == 0 {
		return nil
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	// Validate first so a bad field leaves prior values untouched.
	for _, field := range fields {
		entity, ok := s.db.entities[field.EntityID]
		if !ok || entity.OrganizationID != field.OrganizationID || entity.Status == models.EntityStatusDeleted {
			return store.ErrEntityNotFound
		}
	}

	for _, field := range fields {
		fc := cloneField(field)
		if fc.ID == uuid.Nil {
			fc.ID = uuid.Must(uuid.NewV7())
		}
		s.upsertFieldLocked(fc)
	}
	return nil
}

// GetDynamicFields returns all dynamic fields for an entity, ordered by
// field name.
func (s *EntityStore) GetDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]*models.DynamicField, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	entity, ok := s.db.entities[entityID]
	if !ok || entity.OrganizationID != orgID {
		return nil, store.ErrEntityNotFound
	}

	var result []*models.DynamicField
	for _, field := range s.db.dynamic[entityID] {
		result = append(result, cloneField(field))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FieldName < result[j].FieldName
	})
	return result, nil
}

func (s *EntityStore) findByNaturalKey(orgID uuid.UUID, entityType, entityCode string) *models.Entity {
	for _, entity := range s.db.entities {
		if entity.OrganizationID == orgID &&
			entity.EntityType == entityType &&
			entity.EntityCode == entityCode &&
			entity.Status != models.EntityStatusDeleted {
			return entity
		}
	}
	return nil
}

func (s *EntityStore) upsertFieldLocked(field *models.DynamicField) {
	byName, ok := s.db.dynamic[field.EntityID]
	if !ok {
		byName = make(map[string]*models.DynamicField)
		s.db.dynamic[field.EntityID] = byName
	}
	if prior, ok := byName[field.FieldName]; ok {
		field.ID = prior.ID
		field.CreatedAt = prior.CreatedAt
		field.CreatedBy = prior.CreatedBy
	}
	byName[field.FieldName] = field
}

func entityMatches(entity *models.Entity, filter store.EntityFilter) bool {
	if filter.EntityID != nil && entity.ID != *filter.EntityID {
		return false
	}
	if filter.EntityType != "" && entity.EntityType != filter.EntityType {
		return false
	}
	if filter.EntityCode != "" && entity.EntityCode != filter.EntityCode {
		return false
	}
	if filter.SmartCode != "" && entity.SmartCode != filter.SmartCode {
		return false
	}
	if filter.Status != "" {
		if entity.Status != filter.Status {
			return false
		}
	} else if entity.Status == models.EntityStatusDeleted {
		return false
	}
	if filter.TextSearch != "" {
		needle := strings.ToLower(filter.TextSearch)
		if !strings.Contains(strings.ToLower(entity.EntityName), needle) &&
			!strings.Contains(strings.ToLower(entity.EntityCode), needle) {
			return false
		}
	}
	return true
}
