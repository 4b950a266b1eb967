// Package identity maintains the registry of wallet-addressed principals.
//
// The verification bitmap is never mutated directly by callers: bits are set
// and cleared only through the credential lifecycle, so bit i being set
// always means a live credential of type i exists.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"idvault/internal/address"
	"idvault/internal/audit"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
	"idvault/pkg/sentinel"
)

// Service exposes identity registry operations.
type Service struct {
	store   Store
	deriver *address.Deriver
	logger  *slog.Logger
	auditor *audit.Publisher
}

// NewService wires the identity registry. auditor may be nil.
func NewService(store Store, deriver *address.Deriver, logger *slog.Logger, auditor *audit.Publisher) *Service {
	return &Service{store: store, deriver: deriver, logger: logger, auditor: auditor}
}

// Register creates the identity account for a wallet. The address is derived
// from the wallet ID alone, so re-registering the same wallet is a conflict,
// never a second account.
func (s *Service) Register(ctx context.Context, walletID string, commitment []byte) (*Identity, error) {
	if walletID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet_id is required")
	}
	if len(commitment) != CommitmentSize {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "commitment must be %d bytes", CommitmentSize)
	}

	addr, salt, err := s.deriver.IdentityAddress(walletID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	identity := &Identity{
		WalletID:   walletID,
		Address:    addr,
		Salt:       salt,
		Commitment: append([]byte(nil), commitment...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "identity %s already registered", walletID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identity")
	}

	s.logger.InfoContext(ctx, "identity registered", "wallet_id", walletID, "address", addr)
	return identity, nil
}

// Get returns one identity by wallet ID.
func (s *Service) Get(ctx context.Context, walletID string) (*Identity, error) {
	identity, err := s.store.FindByWallet(ctx, walletID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", walletID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return identity, nil
}

// Exists verifies a wallet has a registered identity, with the same coded
// errors as Get.
func (s *Service) Exists(ctx context.Context, walletID string) error {
	_, err := s.Get(ctx, walletID)
	return err
}

// RotateCommitment replaces the DID commitment on the owner's authority and
// bumps the recovery counter so dependants can detect the key change.
func (s *Service) RotateCommitment(ctx context.Context, walletID string, newCommitment []byte) (*Identity, error) {
	return s.rotate(ctx, walletID, newCommitment, "owner rotation", nil)
}

// Recover rotates the commitment without the owner's key. It is only allowed
// after the identity has been quiet for the full recovery period, which gives
// the legitimate owner time to notice a takeover attempt.
func (s *Service) Recover(ctx context.Context, walletID string, newCommitment []byte) (*Identity, error) {
	now := requestcontext.Now(ctx)
	return s.rotate(ctx, walletID, newCommitment, "recovery", func(i *Identity) error {
		if elapsed := now.Sub(i.UpdatedAt); elapsed < RecoveryPeriod {
			return dErrors.Newf(dErrors.CodeForbidden,
				"recovery period not met: %s of %s elapsed", elapsed.Truncate(time.Second), RecoveryPeriod)
		}
		return nil
	})
}

func (s *Service) rotate(ctx context.Context, walletID string, newCommitment []byte, reason string, guard func(*Identity) error) (*Identity, error) {
	if len(newCommitment) != CommitmentSize {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "commitment must be %d bytes", CommitmentSize)
	}

	now := requestcontext.Now(ctx)
	updated, err := s.store.Update(ctx, walletID, func(i *Identity) error {
		if guard != nil {
			if err := guard(i); err != nil {
				return err
			}
		}
		i.Commitment = append([]byte(nil), newCommitment...)
		i.RecoveryCounter++
		i.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", walletID)
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate commitment")
	}

	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			WalletID: walletID,
			Action:   audit.ActionCommitmentRotated,
			Subject:  updated.Address,
			Reason:   reason,
		})
	}
	s.logger.InfoContext(ctx, "commitment rotated",
		"wallet_id", walletID,
		"recovery_counter", updated.RecoveryCounter,
		"reason", reason,
	)
	return updated, nil
}

// MarkVerified sets the verification bit for a credential type. Called by the
// credential service on issuance; never exposed over the transport.
func (s *Service) MarkVerified(ctx context.Context, walletID string, credentialType schema.CredentialType) error {
	return s.setBit(ctx, walletID, credentialType, true)
}

// ClearVerified clears the verification bit for a credential type. Called by
// the credential service on revocation.
func (s *Service) ClearVerified(ctx context.Context, walletID string, credentialType schema.CredentialType) error {
	return s.setBit(ctx, walletID, credentialType, false)
}

func (s *Service) setBit(ctx context.Context, walletID string, credentialType schema.CredentialType, set bool) error {
	bit, ok := schema.VerificationBit(credentialType)
	if !ok {
		return dErrors.Newf(dErrors.CodeUnknownCredentialType, "unknown credential type %q", credentialType)
	}

	now := requestcontext.Now(ctx)
	_, err := s.store.Update(ctx, walletID, func(i *Identity) error {
		if set {
			i.VerificationBits |= 1 << bit
		} else {
			i.VerificationBits &^= 1 << bit
		}
		i.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", walletID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification bitmap")
	}
	return nil
}
