package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the server-side record behind one access token, keyed by the
// token's JTI. A revoked session invalidates the token before its natural
// expiry.
type Session struct {
	JTI          uuid.UUID `json:"jti"`
	WalletID     string    `json:"wallet_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Revoked      bool      `json:"revoked"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Active reports whether the session may authenticate requests at t.
func (s *Session) Active(t time.Time) bool {
	return !s.Revoked && t.Before(s.ExpiresAt)
}

// RefreshTokenRecord is the stored shadow of an opaque refresh token. Only
// the hash persists; the raw token exists client-side and in transit.
// Rotation is one-way: once Rotated is set the token is permanently dead,
// and presenting it again is treated as theft evidence.
type RefreshTokenRecord struct {
	Hash       string    `json:"hash"`
	WalletID   string    `json:"wallet_id"`
	SessionJTI uuid.UUID `json:"session_jti"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Rotated    bool      `json:"rotated"`
	Revoked    bool      `json:"revoked"`
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// refreshTokenBytes is the entropy of a raw refresh token.
const refreshTokenBytes = 32

// NewRefreshToken returns a fresh opaque token and its storage hash.
func NewRefreshToken() (raw, hash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("refresh token entropy: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken maps a raw refresh token to its storage key.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
