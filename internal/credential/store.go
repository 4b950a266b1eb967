package credential

import "context"

// Store persists credentials. Create fails with sentinel.ErrConflict when the
// address is taken; MarkRevoked is a no-op returning the stored row when the
// credential is already revoked, keeping revocation monotonic at the store.
type Store interface {
	Create(ctx context.Context, credential *Credential) error
	FindByAddress(ctx context.Context, address string) (*Credential, error)
	ListByOwner(ctx context.Context, ownerWalletID string) ([]*Credential, error)
	MarkRevoked(ctx context.Context, address, reason string) (*Credential, error)
}
