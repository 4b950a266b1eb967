package identity

import (
	"context"
	"fmt"
	"sync"

	"idvault/pkg/sentinel"
)

// InMemoryStore keeps identities in memory for tests/dev.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
}

// NewInMemoryStore constructs an empty in-memory identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[string]*Identity)}
}

func (s *InMemoryStore) Create(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.WalletID]; ok {
		return fmt.Errorf("identity %s already exists: %w", identity.WalletID, sentinel.ErrConflict)
	}
	s.identities[identity.WalletID] = identity.Clone()
	return nil
}

func (s *InMemoryStore) FindByWallet(_ context.Context, walletID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.identities[walletID]; ok {
		return i.Clone(), nil
	}
	return nil, fmt.Errorf("identity %s not found: %w", walletID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, walletID string, mutate func(*Identity) error) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.identities[walletID]
	if !ok {
		return nil, fmt.Errorf("identity %s not found: %w", walletID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.identities[walletID] = next
	return next.Clone(), nil
}
