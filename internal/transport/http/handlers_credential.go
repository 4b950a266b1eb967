package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idvault/internal/credential"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
)

// CredentialService is the slice of the credential service the HTTP edge
// uses.
type CredentialService interface {
	Issue(ctx context.Context, ownerWalletID string, credentialType schema.CredentialType, claims map[string]any, issuerID string, expiry *time.Time) (*credential.Credential, error)
	Revoke(ctx context.Context, credentialAddress, callerWalletID, reason string) (*credential.Credential, error)
	Get(ctx context.Context, credentialAddress string) (*credential.Credential, error)
	ListByOwner(ctx context.Context, ownerWalletID string) ([]*credential.Credential, error)
}

// CredentialHandler serves credential issuance, reads and revocation. The
// authenticated wallet is the issuer on issue and the acting party on
// revoke; raw claims enter here once, are hashed downstream and never come
// back out.
type CredentialHandler struct {
	credentials CredentialService
	logger      *slog.Logger
}

// NewCredentialHandler creates the credential endpoint handler.
func NewCredentialHandler(credentials CredentialService, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{credentials: credentials, logger: logger}
}

type issueCredentialRequest struct {
	OwnerWalletID  string                `json:"owner_wallet_id"`
	CredentialType schema.CredentialType `json:"credential_type"`
	Claims         map[string]any        `json:"claims"`
	Expiry         *time.Time            `json:"expiry,omitempty"`
}

func (h *CredentialHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	issuerID := requestcontext.WalletID(r.Context())
	cred, err := h.credentials.Issue(r.Context(), req.OwnerWalletID, req.CredentialType, req.Claims, issuerID, req.Expiry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (h *CredentialHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credentials.Get(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	// Credentials are visible to their owner and issuer; everyone else sees
	// not-found rather than a confirmation the address exists.
	caller := requestcontext.WalletID(r.Context())
	if caller != cred.OwnerWalletID && caller != cred.IssuerID {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (h *CredentialHandler) handleList(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.ListByOwner(r.Context(), requestcontext.WalletID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

type revokeCredentialRequest struct {
	Reason string `json:"reason"`
}

func (h *CredentialHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cred, err := h.credentials.Revoke(r.Context(), chi.URLParam(r, "address"),
		requestcontext.WalletID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}
