package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/heraerp/hera-engine/internal/models"
	"github.com/heraerp/hera-engine/internal/store"
)

// TransactionStore implements store.TransactionStore using in-memory storage.
type TransactionStore struct {
	db *db
}

// Emit persists the header and all lines as one unit.
func (s *TransactionStore) Emit(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.transactions {
		if existing.OrganizationID == txn.OrganizationID && existing.TransactionCode == txn.TransactionCode {
			return nil, store.ErrDuplicateTransactionCode
		}
	}
	if txn.IdempotencyKey != "" {
		if _, ok := s.db.txnByIdemKey[idemKey(txn.OrganizationID, txn.IdempotencyKey)]; ok {
			return nil, store.ErrDuplicateIdempotencyKey
		}
	}

	clone := cloneTransaction(txn)
	if clone.ID == uuid.Nil {
		clone.ID = uuid.Must(uuid.NewV7())
	}
	for _, line := range clone.Lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.Must(uuid.NewV7())
		}
		line.TransactionID = clone.ID
		line.OrganizationID = clone.OrganizationID
	}

	s.db.transactions[clone.ID] = clone
	if clone.IdempotencyKey != "" {
		s.db.txnByIdemKey[idemKey(clone.OrganizationID, clone.IdempotencyKey)] = clone.ID
	}

	return cloneTransaction(clone), nil
}

// GetByIdempotencyKey returns a prior transaction for the key, or (nil, nil).
func (s *TransactionStore) GetByIdempotencyKey(ctx context.Context, orgID uuid.UUID, key string) (*models.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	txnID, ok := s.db.txnByIdemKey[idemKey(orgID, key)]
	if !ok {
		return nil, nil
	}
	txn, ok := s.db.transactions[txnID]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(txn), nil
}

// Get retrieves one transaction with its lines, ordered by line number.
func (s *TransactionStore) Get(ctx context.Context, orgID, txnID uuid.UUID) (*models.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	txn, ok := s.db.transactions[txnID]
	if !ok || txn.OrganizationID != orgID {
		return nil, store.ErrTransactionNotFound
	}

	clone := cloneTransaction(txn)
	sort.Slice(clone.Lines, func(i, j int) bool {
		return clone.Lines[i].LineNumber < clone.Lines[j].LineNumber
	})
	return clone, nil
}

// List returns a page of transaction headers matching the filter, newest
// first. Lines are not hydrated.
func (s *TransactionStore) List(ctx context.Context, orgID uuid.UUID, filter store.TransactionFilter, limit, offset int) ([]*models.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var matched []*models.Transaction
	for _, txn := range s.db.transactions {
		if txn.OrganizationID != orgID {
			continue
		}
		if !transactionMatches(txn, filter) {
			continue
		}
		matched = append(matched, txn)
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

	result := make([]*models.Transaction, len(matched))
	for i, txn := range matched {
		clone := cloneTransaction(txn)
		clone.Lines = nil
		result[i] = clone
	}
	return result, nil
}

func transactionMatches(txn *models.Transaction, filter store.TransactionFilter) bool {
	if filter.TransactionType != "" && txn.TransactionType != filter.TransactionType {
		return false
	}
	if filter.TransactionCode != "" && txn.TransactionCode != filter.TransactionCode {
		return false
	}
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	if filter.SmartCode != "" && txn.SmartCode != filter.SmartCode {
		return false
	}
	if filter.EntityID != nil {
		id := *filter.EntityID
		sourceMatch := txn.SourceEntityID != nil && *txn.SourceEntityID == id
		targetMatch := txn.TargetEntityID != nil && *txn.TargetEntityID == id
		if !sourceMatch && !targetMatch {
			return false
		}
	}
	if filter.DateFrom != nil && txn.TransactionDate.Before(*filter.DateFrom) {
		return false
	}
	if filter.DateTo != nil && txn.TransactionDate.After(*filter.DateTo) {
		return false
	}
	return true
}
