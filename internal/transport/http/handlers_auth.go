// Package httptransport is the HTTP edge of the service. Handlers decode,
// delegate to domain services and translate coded errors to status lines;
// no business rules live here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"idvault/internal/session"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
)

// SessionService is the slice of the session manager the auth endpoints use.
type SessionService interface {
	Login(ctx context.Context, walletID string) (*session.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*session.TokenPair, error)
	Revoke(ctx context.Context, accessToken string) error
	LogoutAll(ctx context.Context, walletID string) (int, error)
}

// AuthHandler serves login, refresh and logout.
type AuthHandler struct {
	sessions SessionService
	logger   *slog.Logger
}

// NewAuthHandler creates the auth endpoint handler.
func NewAuthHandler(sessions SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

type loginRequest struct {
	WalletID string `json:"wallet_id"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func toTokenPairResponse(pair *session.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.sessions.Login(r.Context(), req.WalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenPairResponse(pair))
}

// handleLogout revokes the session behind the presented access token.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type logoutAllResponse struct {
	Revoked int `json:"revoked"`
}

// handleLogoutAll burns every session and refresh token the authenticated
// wallet holds.
func (h *AuthHandler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	walletID := requestcontext.WalletID(r.Context())
	revoked, err := h.sessions.LogoutAll(r.Context(), walletID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: revoked})
}
