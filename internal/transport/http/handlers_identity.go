package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"idvault/internal/identity"
	"idvault/pkg/requestcontext"
)

// IdentityService is the slice of the identity registry the HTTP edge uses.
type IdentityService interface {
	Register(ctx context.Context, walletID string, commitment []byte) (*identity.Identity, error)
	Get(ctx context.Context, walletID string) (*identity.Identity, error)
	RotateCommitment(ctx context.Context, walletID string, newCommitment []byte) (*identity.Identity, error)
	Recover(ctx context.Context, walletID string, newCommitment []byte) (*identity.Identity, error)
}

// IdentityHandler serves identity registration and commitment rotation. All
// operations act on the authenticated wallet; there is no path to touch
// someone else's identity.
type IdentityHandler struct {
	identities IdentityService
	logger     *slog.Logger
}

// NewIdentityHandler creates the identity endpoint handler.
func NewIdentityHandler(identities IdentityService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{identities: identities, logger: logger}
}

type commitmentRequest struct {
	// Commitment is the base64-encoded 32-byte identity commitment.
	Commitment []byte `json:"commitment"`
}

// identityResponse omits the commitment; clients that set it have it, and
// nobody else needs it.
type identityResponse struct {
	WalletID         string    `json:"wallet_id"`
	Address          string    `json:"address"`
	VerificationBits uint32    `json:"verification_bits"`
	RecoveryCounter  uint64    `json:"recovery_counter"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toIdentityResponse(id *identity.Identity) identityResponse {
	return identityResponse{
		WalletID:         id.WalletID,
		Address:          id.Address,
		VerificationBits: id.VerificationBits,
		RecoveryCounter:  id.RecoveryCounter,
		CreatedAt:        id.CreatedAt,
		UpdatedAt:        id.UpdatedAt,
	}
}

func (h *IdentityHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.identities.Register(r.Context(), requestcontext.WalletID(r.Context()), req.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIdentityResponse(id))
}

func (h *IdentityHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := h.identities.Get(r.Context(), requestcontext.WalletID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(id))
}

func (h *IdentityHandler) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.identities.RotateCommitment(r.Context(), requestcontext.WalletID(r.Context()), req.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(id))
}

func (h *IdentityHandler) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.identities.Recover(r.Context(), requestcontext.WalletID(r.Context()), req.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(id))
}
