package grant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"idvault/pkg/sentinel"
)

// InMemoryStore keeps grants in memory for tests/dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[string]*Grant
}

// NewInMemoryStore constructs an empty in-memory grant store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{grants: make(map[string]*Grant)}
}

func (s *InMemoryStore) Create(_ context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grant.Address]; ok {
		return fmt.Errorf("grant %s already exists: %w", grant.Address, sentinel.ErrConflict)
	}
	s.grants[grant.Address] = grant.Clone()
	return nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.grants[address]; ok {
		return g.Clone(), nil
	}
	return nil, fmt.Errorf("grant %s not found: %w", address, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByCredential(_ context.Context, credentialAddress string) ([]*Grant, error) {
	return s.list(func(g *Grant) bool { return g.CredentialAddress == credentialAddress }), nil
}

func (s *InMemoryStore) ListByGrantor(_ context.Context, grantorWalletID string) ([]*Grant, error) {
	return s.list(func(g *Grant) bool { return g.GrantorWalletID == grantorWalletID }), nil
}

func (s *InMemoryStore) ListByGrantee(_ context.Context, granteeWalletID string) ([]*Grant, error) {
	return s.list(func(g *Grant) bool { return g.GranteeWalletID == granteeWalletID }), nil
}

func (s *InMemoryStore) list(match func(*Grant) bool) []*Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Grant
	for _, g := range s.grants {
		if match(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *InMemoryStore) MarkRevoked(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[address]
	if !ok {
		return false, fmt.Errorf("grant %s not found: %w", address, sentinel.ErrNotFound)
	}
	if g.Revoked {
		return false, nil
	}
	g.Revoked = true
	return true, nil
}

func (s *InMemoryStore) ExpiredCandidates(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, g := range s.grants {
		if !g.Revoked && !g.Archived && !now.Before(g.ExpiresAt) {
			out = append(out, g.Address)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) MarkArchived(_ context.Context, address string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[address]
	if !ok {
		return false, fmt.Errorf("grant %s not found: %w", address, sentinel.ErrNotFound)
	}
	if g.Revoked || g.Archived || now.Before(g.ExpiresAt) {
		return false, nil
	}
	g.Archived = true
	return true, nil
}
