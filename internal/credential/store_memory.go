package credential

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"idvault/pkg/sentinel"
)

// InMemoryStore keeps credentials in memory for tests/dev.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
}

// NewInMemoryStore constructs an empty in-memory credential store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[string]*Credential)}
}

func (s *InMemoryStore) Create(_ context.Context, credential *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[credential.Address]; ok {
		return fmt.Errorf("credential %s already exists: %w", credential.Address, sentinel.ErrConflict)
	}
	s.credentials[credential.Address] = credential.Clone()
	return nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.credentials[address]; ok {
		return c.Clone(), nil
	}
	return nil, fmt.Errorf("credential %s not found: %w", address, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerWalletID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.credentials {
		if c.OwnerWalletID == ownerWalletID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (s *InMemoryStore) MarkRevoked(_ context.Context, address, reason string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[address]
	if !ok {
		return nil, fmt.Errorf("credential %s not found: %w", address, sentinel.ErrNotFound)
	}
	if !c.Revoked {
		c.Revoked = true
		c.RevocationReason = reason
	}
	return c.Clone(), nil
}
