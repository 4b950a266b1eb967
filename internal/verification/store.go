package verification

import (
	"context"

	"github.com/google/uuid"
)

// Store persists verification records. The pipeline saves after every stage
// transition so a crash mid-run leaves an inspectable partial record.
//
// Error contract: FindByID returns sentinel.ErrNotFound (wrapped) for unknown
// IDs; Save upserts and never fails on re-save of the same ID.
type Store interface {
	Save(ctx context.Context, record *Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByWallet(ctx context.Context, walletID string) ([]*Record, error)
}
