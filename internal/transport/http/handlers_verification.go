package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"idvault/internal/schema"
	"idvault/internal/verification"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
)

// VerificationService is the slice of the pipeline the HTTP edge uses.
type VerificationService interface {
	Run(ctx context.Context, walletID string, credentialType schema.CredentialType, document []byte) (*verification.Record, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*verification.Record, error)
	ListByWallet(ctx context.Context, walletID string) ([]*verification.Record, error)
}

// VerificationHandler serves pipeline submission and status reads.
type VerificationHandler struct {
	pipeline VerificationService
	logger   *slog.Logger
}

// NewVerificationHandler creates the verification endpoint handler.
func NewVerificationHandler(pipeline VerificationService, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{pipeline: pipeline, logger: logger}
}

type submitVerificationRequest struct {
	CredentialType schema.CredentialType `json:"credential_type"`
	// Document is the base64-encoded submission payload.
	Document []byte `json:"document"`
}

// handleSubmit runs the pipeline to its terminal state and returns the full
// record. A failed verification is still a 201: the submission was accepted
// and processed; its outcome lives in the record.
func (h *VerificationHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.pipeline.Run(r.Context(), requestcontext.WalletID(r.Context()), req.CredentialType, req.Document)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *VerificationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification id"))
		return
	}

	record, err := h.pipeline.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// Records are visible to their submitter only; a foreign record reads
	// the same as a missing one.
	if record.WalletID != requestcontext.WalletID(r.Context()) {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "verification not found"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *VerificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.pipeline.ListByWallet(r.Context(), requestcontext.WalletID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
