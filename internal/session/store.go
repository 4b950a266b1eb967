package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists sessions and refresh-token shadows.
//
// ConsumeRefreshToken is the safety-critical operation: the reuse check and
// the rotated flag write must be one atomic step, so two concurrent calls on
// the same unrotated token yield exactly one success. On sentinel.ErrAlreadyUsed
// the record is still returned so callers can identify whose lineage to burn.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	FindSession(ctx context.Context, jti uuid.UUID) (*Session, error)
	RevokeSession(ctx context.Context, jti uuid.UUID) (changed bool, err error)
	TouchSession(ctx context.Context, jti uuid.UUID, at time.Time) error

	CreateRefreshToken(ctx context.Context, record *RefreshTokenRecord) error
	ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (*RefreshTokenRecord, error)

	// RevokeWallet burns everything tied to a wallet: sessions and refresh
	// tokens alike. Used for logout-all and reuse response.
	RevokeWallet(ctx context.Context, walletID string) (int, error)
}
