package identity

import "context"

// Store persists identities.
//
// Update applies mutate to the current row under the store's own concurrency
// control and persists the result, so bitmap and counter changes from
// concurrent callers never lose writes. mutate returning an error aborts the
// update without persisting.
type Store interface {
	Create(ctx context.Context, identity *Identity) error
	FindByWallet(ctx context.Context, walletID string) (*Identity, error)
	Update(ctx context.Context, walletID string, mutate func(*Identity) error) (*Identity, error)
}
