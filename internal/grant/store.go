package grant

import (
	"context"
	"time"
)

// Store persists access grants.
//
// MarkRevoked and MarkArchived are compare-and-swap operations: they report
// whether this call changed the row, so a revoke racing a sweep can never be
// silently lost and callers audit only real transitions. MarkArchived only
// applies to expired, unrevoked, unarchived grants.
type Store interface {
	Create(ctx context.Context, grant *Grant) error
	FindByAddress(ctx context.Context, address string) (*Grant, error)
	ListByCredential(ctx context.Context, credentialAddress string) ([]*Grant, error)
	ListByGrantor(ctx context.Context, grantorWalletID string) ([]*Grant, error)
	ListByGrantee(ctx context.Context, granteeWalletID string) ([]*Grant, error)
	MarkRevoked(ctx context.Context, address string) (changed bool, err error)
	ExpiredCandidates(ctx context.Context, now time.Time) ([]string, error)
	MarkArchived(ctx context.Context, address string, now time.Time) (changed bool, err error)
}
