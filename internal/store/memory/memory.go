// Package memory provides in-memory implementations of the store
// interfaces. Data is lost on restart; intended for unit tests and local
// development. All stores returned by NewStores share one lock so that
// multi-row writes stay atomic with respect to readers.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
)

type db struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization
	entities      map[uuid.UUID]*models.Entity
	dynamic       map[uuid.UUID]map[string]*models.DynamicField // entity_id -> field_name
	relationships map[uuid.UUID]*models.Relationship
	transactions  map[uuid.UUID]*models.Transaction
	txnByIdemKey  map[string]uuid.UUID // orgID|key -> transaction id
}

func newDB() *db {
	return &db{
		organizations: make(map[uuid.UUID]*models.Organization),
		entities:      make(map[uuid.UUID]*models.Entity),
		dynamic:       make(map[uuid.UUID]map[string]*models.DynamicField),
		relationships: make(map[uuid.UUID]*models.Relationship),
		transactions:  make(map[uuid.UUID]*models.Transaction),
		txnByIdemKey:  make(map[string]uuid.UUID),
	}
}

// NewStores creates one in-memory backend and returns the per-relation
// stores bound to it.
func NewStores() store.Stores {
	d := newDB()
	return store.Stores{
		Organizations: &OrganizationStore{db: d},
		Entities:      &EntityStore{db: d},
		Relationships: &RelationshipStore{db: d},
		Transactions:  &TransactionStore{db: d},
	}
}

func idemKey(orgID uuid.UUID, key string) string {
	return orgID.String() + "|" + key
}

// cloneEntity copies an entity without its hydrated slices.
func cloneEntity(e *models.Entity) *models.Entity {
	clone := *e
	clone.DynamicFields = nil
	clone.Relationships = nil
	return &clone
}

func cloneField(f *models.DynamicField) *models.DynamicField {
	clone := *f
	return &clone
}

func cloneRelationship(r *models.Relationship) *models.Relationship {
	clone := *r
	return &clone
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	clone := *t
	clone.Lines = make([]*models.TransactionLine, len(t.Lines))
	for i, line := range t.Lines {
		lc := *line
		clone.Lines[i] = &lc
	}
	return &clone
}
