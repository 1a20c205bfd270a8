package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
type OrganizationStore struct {
	db *db
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.organizations[org.ID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	for _, existing := range s.db.organizations {
		if existing.OrganizationCode == org.OrganizationCode {
			return store.ErrOrganizationAlreadyExists
		}
	}

	clone := *org
	s.db.organizations[org.ID] = &clone
	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	org, exists := s.db.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetByCode retrieves an organization by its unique code.
func (s *OrganizationStore) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, org := range s.db.organizations {
		if org.OrganizationCode == code {
			clone := *org
			return &clone, nil
		}
	}
	return nil, store.ErrOrganizationNotFound
}
