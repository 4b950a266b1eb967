// Package credential issues and revokes hashed claim credentials.
//
// Claims are hashed at the boundary and discarded; nothing in this package
// ever stores or returns raw claim values.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"idvault/internal/address"
	"idvault/internal/audit"
	"idvault/internal/platform/metrics"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
	"idvault/pkg/sentinel"
)

// IdentityRegistry is the slice of the identity service the credential
// lifecycle needs: bitmap maintenance and existence checks.
type IdentityRegistry interface {
	Exists(ctx context.Context, walletID string) error
	MarkVerified(ctx context.Context, walletID string, credentialType schema.CredentialType) error
	ClearVerified(ctx context.Context, walletID string, credentialType schema.CredentialType) error
}

// GrantRevoker cascade-revokes every live grant that discloses a credential.
// Implemented by the access-grant manager.
type GrantRevoker interface {
	RevokeByCredential(ctx context.Context, credentialAddress string) (int, error)
}

// Service exposes the credential lifecycle.
type Service struct {
	store    Store
	identity IdentityRegistry
	grants   GrantRevoker
	deriver  *address.Deriver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  *audit.Publisher
}

// NewService wires the credential service. grants, metrics and auditor may be
// nil.
func NewService(
	store Store,
	identity IdentityRegistry,
	grants GrantRevoker,
	deriver *address.Deriver,
	logger *slog.Logger,
	m *metrics.Metrics,
	auditor *audit.Publisher,
) *Service {
	return &Service{
		store:    store,
		identity: identity,
		grants:   grants,
		deriver:  deriver,
		logger:   logger,
		metrics:  m,
		auditor:  auditor,
	}
}

// HashClaims produces the fixed-width digest stored in place of the claims.
// json.Marshal sorts map keys, so equal claim sets always hash equal.
func HashClaims(claims map[string]any) ([]byte, error) {
	canonical, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

// Issue creates a credential for an owner wallet. The address is derived from
// (owner, type, issuer), so the same issuer cannot issue the same type to the
// same wallet twice; that surfaces as a conflict.
func (s *Service) Issue(
	ctx context.Context,
	ownerWalletID string,
	credentialType schema.CredentialType,
	claims map[string]any,
	issuerID string,
	expiry *time.Time,
) (*Credential, error) {
	if ownerWalletID == "" || issuerID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner wallet and issuer are required")
	}
	if !schema.Known(credentialType) {
		return nil, dErrors.Newf(dErrors.CodeUnknownCredentialType, "unknown credential type %q", credentialType)
	}
	if len(claims) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "claims are required")
	}

	now := requestcontext.Now(ctx)
	if expiry != nil && !expiry.After(now) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "expiry must be in the future")
	}

	// The owner must be registered before anything is persisted; a failed
	// issue must not leave a credential behind.
	if err := s.identity.Exists(ctx, ownerWalletID); err != nil {
		return nil, err
	}

	claimsHash, err := HashClaims(claims)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "claims are not hashable")
	}

	addr, salt, err := s.deriver.CredentialAddress(ownerWalletID, string(credentialType), issuerID)
	if err != nil {
		return nil, err
	}

	credential := &Credential{
		Address:        addr,
		OwnerWalletID:  ownerWalletID,
		CredentialType: credentialType,
		ClaimsHash:     claimsHash,
		IssuerID:       issuerID,
		Salt:           salt,
		IssuedAt:       now,
	}
	if expiry != nil {
		e := expiry.UTC()
		credential.Expiry = &e
	}

	if err := s.store.Create(ctx, credential); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"credential of type %s already issued to %s by %s", credentialType, ownerWalletID, issuerID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	if err := s.identity.MarkVerified(ctx, ownerWalletID, credentialType); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CredentialsIssued.Inc()
	}
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			WalletID: ownerWalletID,
			Action:   audit.ActionCredentialIssued,
			Subject:  addr,
			Detail:   map[string]string{"credential_type": string(credentialType), "issuer_id": issuerID},
		})
	}
	s.logger.InfoContext(ctx, "credential issued",
		"address", addr,
		"owner", ownerWalletID,
		"credential_type", string(credentialType),
	)
	return credential, nil
}

// Revoke marks a credential revoked, cascade-revokes its grants and clears
// the owner's verification bit when no live credential of the type remains.
// Only the owner or the issuer may revoke; repeat revocations are no-ops.
func (s *Service) Revoke(ctx context.Context, credentialAddress, callerWalletID, reason string) (*Credential, error) {
	credential, err := s.Get(ctx, credentialAddress)
	if err != nil {
		return nil, err
	}
	if callerWalletID != credential.OwnerWalletID && callerWalletID != credential.IssuerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the owner or issuer may revoke a credential")
	}
	if credential.Revoked {
		return credential, nil
	}

	credential, err = s.store.MarkRevoked(ctx, credentialAddress, reason)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}

	var cascaded int
	if s.grants != nil {
		if cascaded, err = s.grants.RevokeByCredential(ctx, credentialAddress); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cascade-revoke grants")
		}
	}

	if err := s.maybeClearBit(ctx, credential); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CredentialsRevoked.Inc()
	}
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			WalletID: credential.OwnerWalletID,
			Action:   audit.ActionCredentialRevoked,
			Subject:  credentialAddress,
			Reason:   reason,
		})
	}
	s.logger.InfoContext(ctx, "credential revoked",
		"address", credentialAddress,
		"owner", credential.OwnerWalletID,
		"cascaded_grants", cascaded,
	)
	return credential, nil
}

// maybeClearBit clears the owner's verification bit for the credential's type
// unless another active credential of the same type still backs it.
func (s *Service) maybeClearBit(ctx context.Context, revoked *Credential) error {
	remaining, err := s.store.ListByOwner(ctx, revoked.OwnerWalletID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list owner credentials")
	}
	now := requestcontext.Now(ctx)
	for _, c := range remaining {
		if c.CredentialType == revoked.CredentialType && c.Address != revoked.Address && c.Active(now) {
			return nil
		}
	}
	return s.identity.ClearVerified(ctx, revoked.OwnerWalletID, revoked.CredentialType)
}

// Get returns one credential by address.
func (s *Service) Get(ctx context.Context, credentialAddress string) (*Credential, error) {
	credential, err := s.store.FindByAddress(ctx, credentialAddress)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "credential %s not found", credentialAddress)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return credential, nil
}

// ListByOwner returns a wallet's credentials, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerWalletID string) ([]*Credential, error) {
	credentials, err := s.store.ListByOwner(ctx, ownerWalletID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return credentials, nil
}
