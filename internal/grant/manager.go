// Package grant manages selective-disclosure access grants.
//
// The disclosability query here is the only interface other services should
// consult before revealing a credential field; nothing in this package ever
// returns claim values.
package grant

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"idvault/internal/address"
	"idvault/internal/audit"
	"idvault/internal/credential"
	"idvault/internal/platform/metrics"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
	"idvault/pkg/sentinel"
)

// sweepWorkers bounds the archive fan-out of one sweep pass.
const sweepWorkers = 8

// CredentialReader is the slice of the credential service the grant manager
// needs: resolving a grant's credential to validate masks and activity.
type CredentialReader interface {
	Get(ctx context.Context, credentialAddress string) (*credential.Credential, error)
}

// Manager owns the access-grant lifecycle.
type Manager struct {
	store       Store
	credentials CredentialReader
	deriver     *address.Deriver
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     *audit.Publisher
	maxTTL      time.Duration
}

// NewManager wires the grant manager. metrics and auditor may be nil.
func NewManager(
	store Store,
	credentials CredentialReader,
	deriver *address.Deriver,
	logger *slog.Logger,
	m *metrics.Metrics,
	auditor *audit.Publisher,
	maxTTL time.Duration,
) *Manager {
	return &Manager{
		store:       store,
		credentials: credentials,
		deriver:     deriver,
		logger:      logger,
		metrics:     m,
		auditor:     auditor,
		maxTTL:      maxTTL,
	}
}

// Create issues a grant over a credential. The grantor must own the
// credential, the mask must stay inside the credential type's declared
// schema, and the TTL must be positive and within the configured maximum.
func (m *Manager) Create(
	ctx context.Context,
	credentialAddress, grantorWalletID, granteeWalletID string,
	fieldMask uint64,
	ttl time.Duration,
	purpose string,
) (*Grant, error) {
	if grantorWalletID == "" || granteeWalletID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "grantor and grantee wallets are required")
	}
	if ttl <= 0 || ttl > m.maxTTL {
		return nil, dErrors.Newf(dErrors.CodeTTLOutOfRange, "ttl must be in (0, %s], got %s", m.maxTTL, ttl)
	}

	cred, err := m.credentials.Get(ctx, credentialAddress)
	if err != nil {
		return nil, err
	}
	if cred.OwnerWalletID != grantorWalletID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the credential owner may grant access")
	}

	now := requestcontext.Now(ctx)
	if !cred.Active(now) {
		return nil, dErrors.Newf(dErrors.CodeInvalidFieldMask,
			"credential %s is revoked or expired", credentialAddress)
	}

	sch, ok := schema.ForType(cred.CredentialType)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnknownCredentialType, "unknown credential type %q", cred.CredentialType)
	}
	// Never truncate: a single out-of-schema bit rejects the whole mask.
	if !sch.MaskValid(fieldMask) {
		return nil, dErrors.Newf(dErrors.CodeInvalidFieldMask,
			"field mask %#x exceeds %s schema width %d", fieldMask, cred.CredentialType, sch.Width())
	}

	addr, salt, err := m.deriver.GrantAddress(credentialAddress, grantorWalletID, purpose)
	if err != nil {
		return nil, err
	}

	grant := &Grant{
		Address:           addr,
		CredentialAddress: credentialAddress,
		GrantorWalletID:   grantorWalletID,
		GranteeWalletID:   granteeWalletID,
		Purpose:           purpose,
		FieldMask:         fieldMask,
		Salt:              salt,
		ExpiresAt:         now.Add(ttl).UTC(),
		CreatedAt:         now.UTC(),
	}
	if err := m.store.Create(ctx, grant); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"grant for (%s, %s, %q) already exists", credentialAddress, grantorWalletID, purpose)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store grant")
	}

	if m.metrics != nil {
		m.metrics.GrantsCreated.Inc()
	}
	if m.auditor != nil {
		m.auditor.Emit(ctx, audit.Event{
			WalletID: grantorWalletID,
			Action:   audit.ActionGrantCreated,
			Subject:  addr,
			Detail: map[string]string{
				"grantee": granteeWalletID,
				"purpose": purpose,
			},
		})
	}
	m.logger.InfoContext(ctx, "grant created",
		"address", addr,
		"credential", credentialAddress,
		"grantee", granteeWalletID,
	)
	return grant, nil
}

// Revoke revokes a grant on the grantor's authority. Revoking an
// already-revoked grant is a no-op success; only real transitions are
// audited and counted.
func (m *Manager) Revoke(ctx context.Context, grantAddress, requesterWalletID string) error {
	grant, err := m.Get(ctx, grantAddress)
	if err != nil {
		return err
	}
	if requesterWalletID != grant.GrantorWalletID {
		return dErrors.New(dErrors.CodeForbidden, "only the grantor may revoke a grant")
	}

	changed, err := m.store.MarkRevoked(ctx, grantAddress)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke grant")
	}
	if !changed {
		return nil
	}

	if m.metrics != nil {
		m.metrics.GrantsRevoked.Inc()
	}
	if m.auditor != nil {
		m.auditor.Emit(ctx, audit.Event{
			WalletID: requesterWalletID,
			Action:   audit.ActionGrantRevoked,
			Subject:  grantAddress,
		})
	}
	m.logger.InfoContext(ctx, "grant revoked", "address", grantAddress)
	return nil
}

// RevokeByCredential revokes every live grant over a credential. Called by
// the credential service when the credential itself is revoked.
func (m *Manager) RevokeByCredential(ctx context.Context, credentialAddress string) (int, error) {
	grants, err := m.store.ListByCredential(ctx, credentialAddress)
	if err != nil {
		return 0, err
	}

	var revoked int
	for _, g := range grants {
		changed, err := m.store.MarkRevoked(ctx, g.Address)
		if err != nil {
			return revoked, err
		}
		if !changed {
			continue
		}
		revoked++
		if m.metrics != nil {
			m.metrics.GrantsRevoked.Inc()
		}
		if m.auditor != nil {
			m.auditor.Emit(ctx, audit.Event{
				WalletID: g.GrantorWalletID,
				Action:   audit.ActionGrantRevoked,
				Subject:  g.Address,
				Reason:   "credential revoked",
			})
		}
	}
	return revoked, nil
}

// IsDisclosable reports whether a field of the granted credential may be
// revealed right now: the grant must be active and the field's bit set.
// Fields the credential type does not declare are never disclosable.
func (m *Manager) IsDisclosable(ctx context.Context, grantAddress, field string) (bool, error) {
	grant, err := m.Get(ctx, grantAddress)
	if err != nil {
		return false, err
	}
	if !grant.Active(requestcontext.Now(ctx)) {
		return false, nil
	}

	cred, err := m.credentials.Get(ctx, grant.CredentialAddress)
	if err != nil {
		return false, err
	}
	sch, ok := schema.ForType(cred.CredentialType)
	if !ok {
		return false, nil
	}
	bit, ok := sch.FieldBit(field)
	if !ok {
		return false, nil
	}
	return grant.PermitsBit(bit), nil
}

// SweepExpired archives grants whose TTL has elapsed. Revoked grants are
// never touched, interrupted runs re-converge on the next pass, and the
// per-address CAS keeps it safe against concurrent creates and revokes.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	candidates, err := m.store.ExpiredCandidates(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired grants")
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var (
		group, groupCtx = errgroup.WithContext(ctx)
		archived        = make([]int, sweepWorkers)
		shards          = make([][]string, sweepWorkers)
	)
	for i, addr := range candidates {
		shards[i%sweepWorkers] = append(shards[i%sweepWorkers], addr)
	}
	for w := 0; w < sweepWorkers; w++ {
		w := w
		group.Go(func() error {
			for _, addr := range shards[w] {
				changed, err := m.store.MarkArchived(groupCtx, addr, now)
				if err != nil {
					return err
				}
				if changed {
					archived[w]++
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "sweep failed")
	}

	var total int
	for _, n := range archived {
		total += n
	}
	if m.metrics != nil {
		m.metrics.GrantsSwept.Add(float64(total))
	}
	if total > 0 {
		m.logger.InfoContext(ctx, "expired grants archived", "count", total)
	}
	return total, nil
}

// Get returns one grant by address.
func (m *Manager) Get(ctx context.Context, grantAddress string) (*Grant, error) {
	grant, err := m.store.FindByAddress(ctx, grantAddress)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "grant %s not found", grantAddress)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grant")
	}
	return grant, nil
}

// ListByGrantor returns the grants a wallet has issued, newest first.
func (m *Manager) ListByGrantor(ctx context.Context, grantorWalletID string) ([]*Grant, error) {
	grants, err := m.store.ListByGrantor(ctx, grantorWalletID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

// ListByGrantee returns the grants issued to a wallet, newest first.
func (m *Manager) ListByGrantee(ctx context.Context, granteeWalletID string) ([]*Grant, error) {
	grants, err := m.store.ListByGrantee(ctx, granteeWalletID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

// ListByCredential returns every grant over a credential, newest first.
func (m *Manager) ListByCredential(ctx context.Context, credentialAddress string) ([]*Grant, error) {
	grants, err := m.store.ListByCredential(ctx, credentialAddress)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}
