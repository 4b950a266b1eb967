// Package session owns login, token rotation and revocation.
//
// Access tokens are signed JWTs validated against a server-side session
// record; refresh tokens are opaque and stored only as hashes. Reuse of a
// rotated refresh token is treated as theft evidence and burns the wallet's
// whole token lineage.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"idvault/internal/audit"
	"idvault/internal/platform/metrics"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
	"idvault/pkg/sentinel"
)

// Manager issues, rotates and revokes sessions.
type Manager struct {
	store      Store
	signer     *TokenSigner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	auditor    *audit.Publisher
	sessionTTL time.Duration
	refreshTTL time.Duration

	loginPerMin int
	limiterMu   sync.Mutex
	limiters    map[string]*rate.Limiter
}

// NewManager wires the session manager. metrics and auditor may be nil;
// loginPerMin <= 0 disables login throttling.
func NewManager(
	store Store,
	signer *TokenSigner,
	logger *slog.Logger,
	m *metrics.Metrics,
	auditor *audit.Publisher,
	sessionTTL, refreshTTL time.Duration,
	loginPerMin int,
) *Manager {
	return &Manager{
		store:       store,
		signer:      signer,
		logger:      logger,
		metrics:     m,
		auditor:     auditor,
		sessionTTL:  sessionTTL,
		refreshTTL:  refreshTTL,
		loginPerMin: loginPerMin,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Login issues a fresh session and refresh token pair for a wallet. The
// refresh token returned here has never existed before; only its hash is
// stored.
func (m *Manager) Login(ctx context.Context, walletID string) (*TokenPair, error) {
	if walletID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet_id is required")
	}
	if !m.allowLogin(walletID) {
		return nil, dErrors.Newf(dErrors.CodeRateLimited, "too many login attempts for %s", walletID)
	}
	return m.issuePair(ctx, walletID)
}

// Refresh rotates a refresh token. Presenting an already-rotated token is
// reuse: the wallet's entire lineage is revoked and the call fails with a
// security-significant code distinct from not-found.
func (m *Manager) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	if rawRefreshToken == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "refresh_token is required")
	}

	now := requestcontext.Now(ctx)
	record, err := m.store.ConsumeRefreshToken(ctx, HashToken(rawRefreshToken), now)
	switch {
	case err == nil:
		return m.issuePair(ctx, record.WalletID)

	case errors.Is(err, sentinel.ErrAlreadyUsed):
		// The winner of the rotation race already has a new pair; whoever
		// presented this copy is holding a stolen or stale token.
		m.handleReuse(ctx, record)
		return nil, dErrors.New(dErrors.CodeTokenReuse, "refresh token reuse detected")

	case errors.Is(err, sentinel.ErrExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "refresh token expired")

	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "refresh token not found")

	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume refresh token")
	}
}

// Validate proves an access token is live: valid signature, unexpired, and
// its session neither revoked nor missing. Returns the wallet ID on success.
func (m *Manager) Validate(ctx context.Context, accessToken string) (string, error) {
	claims, err := m.signer.Verify(accessToken)
	if err != nil {
		return "", err
	}
	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	session, err := m.store.FindSession(ctx, jti)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "session not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	now := requestcontext.Now(ctx)
	if !session.Active(now) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "session revoked or expired")
	}

	if err := m.store.TouchSession(ctx, jti, now); err != nil {
		// Best effort; staleness of last-active never fails a request.
		m.logger.WarnContext(ctx, "failed to update session activity", "error", err)
	}
	return session.WalletID, nil
}

// Revoke invalidates the session behind an access token. Idempotent.
func (m *Manager) Revoke(ctx context.Context, accessToken string) error {
	claims, err := m.signer.Verify(accessToken)
	if err != nil {
		return err
	}
	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	changed, err := m.store.RevokeSession(ctx, jti)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}
	if changed && m.auditor != nil {
		m.auditor.Emit(ctx, audit.Event{
			WalletID: claims.WalletID,
			Action:   audit.ActionSessionRevoked,
			Subject:  jti.String(),
		})
	}
	return nil
}

// LogoutAll revokes every session and refresh token a wallet holds.
func (m *Manager) LogoutAll(ctx context.Context, walletID string) (int, error) {
	revoked, err := m.store.RevokeWallet(ctx, walletID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke wallet sessions")
	}
	if revoked > 0 && m.auditor != nil {
		m.auditor.Emit(ctx, audit.Event{
			WalletID: walletID,
			Action:   audit.ActionSessionRevoked,
			Reason:   "logout all",
		})
	}
	m.logger.InfoContext(ctx, "wallet sessions revoked", "wallet_id", walletID, "count", revoked)
	return revoked, nil
}

func (m *Manager) issuePair(ctx context.Context, walletID string) (*TokenPair, error) {
	now := requestcontext.Now(ctx)
	jti := uuid.New()
	sessionExpiry := now.Add(m.sessionTTL)
	refreshExpiry := now.Add(m.refreshTTL)

	accessToken, err := m.signer.Sign(walletID, jti, now, sessionExpiry)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	rawRefresh, refreshHash, err := NewRefreshToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint refresh token")
	}

	if err := m.store.CreateSession(ctx, &Session{
		JTI:          jti,
		WalletID:     walletID,
		IssuedAt:     now,
		ExpiresAt:    sessionExpiry,
		LastActiveAt: now,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store session")
	}
	if err := m.store.CreateRefreshToken(ctx, &RefreshTokenRecord{
		Hash:       refreshHash,
		WalletID:   walletID,
		SessionJTI: jti,
		IssuedAt:   now,
		ExpiresAt:  refreshExpiry,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store refresh token")
	}

	if m.metrics != nil {
		m.metrics.SessionsIssued.Inc()
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     rawRefresh,
		AccessExpiresAt:  sessionExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (m *Manager) handleReuse(ctx context.Context, record *RefreshTokenRecord) {
	revoked, err := m.store.RevokeWallet(ctx, record.WalletID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to burn token lineage after reuse",
			"wallet_id", record.WalletID,
			"error", err,
		)
	}
	if m.metrics != nil {
		m.metrics.TokenReuseDetected.Inc()
	}
	if m.auditor != nil {
		m.auditor.Emit(ctx, audit.Event{
			WalletID: record.WalletID,
			Action:   audit.ActionTokenReuseDetected,
			Subject:  record.SessionJTI.String(),
			Reason:   "rotated refresh token presented again",
		})
	}
	m.logger.WarnContext(ctx, "refresh token reuse detected",
		"wallet_id", record.WalletID,
		"sessions_revoked", revoked,
	)
}

func (m *Manager) allowLogin(walletID string) bool {
	if m.loginPerMin <= 0 {
		return true
	}
	m.limiterMu.Lock()
	limiter, ok := m.limiters[walletID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.loginPerMin)), m.loginPerMin)
		m.limiters[walletID] = limiter
	}
	m.limiterMu.Unlock()
	return limiter.Allow()
}
