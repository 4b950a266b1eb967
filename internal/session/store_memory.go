package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"idvault/pkg/sentinel"
)

// InMemoryStore keeps sessions and refresh tokens in memory for tests/dev.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	refresh  map[string]*RefreshTokenRecord
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		refresh:  make(map[string]*RefreshTokenRecord),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.JTI] = &copied
	return nil
}

func (s *InMemoryStore) FindSession(_ context.Context, jti uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[jti]; ok {
		copied := *sess
		return &copied, nil
	}
	return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) RevokeSession(_ context.Context, jti uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[jti]
	if !ok {
		return false, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if sess.Revoked {
		return false, nil
	}
	sess.Revoked = true
	return true, nil
}

func (s *InMemoryStore) TouchSession(_ context.Context, jti uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[jti]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if at.After(sess.LastActiveAt) {
		sess.LastActiveAt = at
	}
	return nil
}

func (s *InMemoryStore) CreateRefreshToken(_ context.Context, record *RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.refresh[record.Hash] = &copied
	return nil
}

// ConsumeRefreshToken validates and rotates under one lock acquisition, which
// is what makes two concurrent refreshes on the same token resolve to exactly
// one winner. The record is returned on ErrAlreadyUsed for replay handling.
func (s *InMemoryStore) ConsumeRefreshToken(_ context.Context, hash string, now time.Time) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refresh[hash]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if record.Rotated || record.Revoked {
		copied := *record
		return &copied, fmt.Errorf("refresh token already used: %w", sentinel.ErrAlreadyUsed)
	}
	if !now.Before(record.ExpiresAt) {
		copied := *record
		return &copied, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}

	record.Rotated = true
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) RevokeWallet(_ context.Context, walletID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, sess := range s.sessions {
		if sess.WalletID == walletID && !sess.Revoked {
			sess.Revoked = true
			n++
		}
	}
	for _, record := range s.refresh {
		if record.WalletID == walletID && !record.Revoked {
			record.Revoked = true
			n++
		}
	}
	return n, nil
}
