package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idvault/internal/schema"
	"idvault/pkg/sentinel"
)

func TestInMemoryStore_SaveIsolatesCaller(t *testing.T) {
	store := NewInMemoryStore()
	record := NewRecord("wallet-a", schema.TypeNationalID, time.Now().UTC())
	require.NoError(t, store.Save(context.Background(), record))

	// Mutations after Save must not bleed into the stored copy.
	record.OverallStatus = StatusFailed

	got, err := store.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.OverallStatus)
}

func TestInMemoryStore_FindByIDMissing(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ListByWalletNewestFirst(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now().UTC()

	older := NewRecord("wallet-a", schema.TypeNationalID, base.Add(-time.Hour))
	newer := NewRecord("wallet-a", schema.TypeTaxID, base)
	other := NewRecord("wallet-b", schema.TypeNationalID, base)
	for _, r := range []*Record{older, newer, other} {
		require.NoError(t, store.Save(context.Background(), r))
	}

	got, err := store.ListByWallet(context.Background(), "wallet-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}
