package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idvault/internal/grant"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
)

// GrantService is the slice of the grant manager the HTTP edge uses.
type GrantService interface {
	Create(ctx context.Context, credentialAddress, grantorWalletID, granteeWalletID string, fieldMask uint64, ttl time.Duration, purpose string) (*grant.Grant, error)
	Revoke(ctx context.Context, grantAddress, requesterWalletID string) error
	IsDisclosable(ctx context.Context, grantAddress, field string) (bool, error)
	Get(ctx context.Context, grantAddress string) (*grant.Grant, error)
	ListByGrantor(ctx context.Context, grantorWalletID string) ([]*grant.Grant, error)
	ListByGrantee(ctx context.Context, granteeWalletID string) ([]*grant.Grant, error)
}

// GrantHandler serves selective-disclosure grant management. The
// authenticated wallet is always the grantor on writes.
type GrantHandler struct {
	grants GrantService
	logger *slog.Logger
}

// NewGrantHandler creates the grant endpoint handler.
func NewGrantHandler(grants GrantService, logger *slog.Logger) *GrantHandler {
	return &GrantHandler{grants: grants, logger: logger}
}

type createGrantRequest struct {
	CredentialAddress string `json:"credential_address"`
	GranteeWalletID   string `json:"grantee_wallet_id"`
	FieldMask         uint64 `json:"field_mask"`
	TTLSeconds        int64  `json:"ttl_seconds"`
	Purpose           string `json:"purpose,omitempty"`
}

func (h *GrantHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.grants.Create(r.Context(), req.CredentialAddress,
		requestcontext.WalletID(r.Context()), req.GranteeWalletID,
		req.FieldMask, time.Duration(req.TTLSeconds)*time.Second, req.Purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GrantHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	g, err := h.loadVisible(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleList returns the caller's grants; ?role=grantee flips the view from
// grants given to grants received.
func (h *GrantHandler) handleList(w http.ResponseWriter, r *http.Request) {
	walletID := requestcontext.WalletID(r.Context())

	var (
		grants []*grant.Grant
		err    error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "", "grantor":
		grants, err = h.grants.ListByGrantor(r.Context(), walletID)
	case "grantee":
		grants, err = h.grants.ListByGrantee(r.Context(), walletID)
	default:
		writeError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown role %q", role))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *GrantHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	err := h.grants.Revoke(r.Context(), chi.URLParam(r, "address"),
		requestcontext.WalletID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type disclosableResponse struct {
	Field       string `json:"field"`
	Disclosable bool   `json:"disclosable"`
}

func (h *GrantHandler) handleDisclosable(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "field query parameter is required"))
		return
	}
	g, err := h.loadVisible(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ok, err := h.grants.IsDisclosable(r.Context(), g.Address, field)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disclosableResponse{Field: field, Disclosable: ok})
}

// loadVisible fetches the addressed grant if the caller is its grantor or
// grantee; anyone else sees not-found.
func (h *GrantHandler) loadVisible(r *http.Request) (*grant.Grant, error) {
	g, err := h.grants.Get(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return nil, err
	}
	caller := requestcontext.WalletID(r.Context())
	if caller != g.GrantorWalletID && caller != g.GranteeWalletID {
		return nil, dErrors.New(dErrors.CodeNotFound, "grant not found")
	}
	return g, nil
}
