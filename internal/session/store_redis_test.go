package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idvault/pkg/sentinel"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewRedisStore(client), mr
}

func testRefreshRecord(walletID string, ttl time.Duration) *RefreshTokenRecord {
	_, hash, _ := NewRefreshToken()
	return &RefreshTokenRecord{
		Hash:       hash,
		WalletID:   walletID,
		SessionJTI: uuid.New(),
		IssuedAt:   time.Now().UTC(),
		ExpiresAt:  time.Now().Add(ttl).UTC(),
	}
}

func TestRedisStore_ConsumeRefreshToken(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	record := testRefreshRecord("wallet-1", time.Hour)
	require.NoError(t, store.CreateRefreshToken(ctx, record))

	consumed, err := store.ConsumeRefreshToken(ctx, record.Hash, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", consumed.WalletID)

	// Second consume reports reuse and still hands back the record so the
	// caller knows whose lineage to burn.
	again, err := store.ConsumeRefreshToken(ctx, record.Hash, time.Now())
	require.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	require.NotNil(t, again)
	assert.Equal(t, "wallet-1", again.WalletID)

	_, err = store.ConsumeRefreshToken(ctx, "no-such-hash", time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisStore_ExpiredTokenLooksUnknown(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	record := testRefreshRecord("wallet-1", time.Minute)
	require.NoError(t, store.CreateRefreshToken(ctx, record))

	mr.FastForward(2 * time.Minute)

	_, err := store.ConsumeRefreshToken(ctx, record.Hash, time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound,
		"expired tokens age out of the store entirely")
}

func TestRedisStore_SessionLifecycle(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	session := &Session{
		JTI:          uuid.New(),
		WalletID:     "wallet-1",
		IssuedAt:     time.Now().UTC(),
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		LastActiveAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.FindSession(ctx, session.JTI)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", got.WalletID)
	assert.False(t, got.Revoked)

	later := time.Now().Add(10 * time.Minute).UTC()
	require.NoError(t, store.TouchSession(ctx, session.JTI, later))
	got, err = store.FindSession(ctx, session.JTI)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastActiveAt, time.Second)

	changed, err := store.RevokeSession(ctx, session.JTI)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = store.RevokeSession(ctx, session.JTI)
	require.NoError(t, err)
	assert.False(t, changed, "second revoke is a no-op")
}

func TestRedisStore_RevokeWallet(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, store.CreateSession(ctx, &Session{
			JTI:       uuid.New(),
			WalletID:  "wallet-1",
			IssuedAt:  time.Now().UTC(),
			ExpiresAt: time.Now().Add(time.Hour).UTC(),
		}))
		require.NoError(t, store.CreateRefreshToken(ctx, testRefreshRecord("wallet-1", time.Hour)))
	}
	otherJTI := uuid.New()
	require.NoError(t, store.CreateSession(ctx, &Session{
		JTI:       otherJTI,
		WalletID:  "wallet-2",
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}))

	revoked, err := store.RevokeWallet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, 4, revoked)

	got, err := store.FindSession(ctx, otherJTI)
	require.NoError(t, err)
	assert.False(t, got.Revoked, "other wallets are untouched")
}
