package verification

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"idvault/pkg/sentinel"
)

// InMemoryStore keeps verification records in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewInMemoryStore constructs an empty in-memory verification store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[id]; ok {
		return r.Clone(), nil
	}
	return nil, fmt.Errorf("verification record not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByWallet(_ context.Context, walletID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.WalletID == walletID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
