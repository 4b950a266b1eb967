package identity

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idvault/internal/address"
	"idvault/internal/audit"
	"idvault/internal/platform/logger"
	"idvault/internal/platform/metrics"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
)

func newTestService(t *testing.T) (*Service, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	log := logger.New(io.Discard)
	auditor := audit.NewPublisher(sink, log, metrics.New(prometheus.NewRegistry()))
	return NewService(NewInMemoryStore(), address.New("idvault-test", 0), log, auditor), sink
}

func testCommitment(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, CommitmentSize)
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("creates identity with derived address", func(t *testing.T) {
		id, err := svc.Register(ctx, "wallet-a", testCommitment(1))
		require.NoError(t, err)
		assert.Len(t, id.Address, address.AddressLength)
		assert.EqualValues(t, 0, id.VerificationBits)
		assert.EqualValues(t, 0, id.RecoveryCounter)
	})

	t.Run("same wallet conflicts", func(t *testing.T) {
		_, err := svc.Register(ctx, "wallet-a", testCommitment(2))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("rejects malformed commitment", func(t *testing.T) {
		_, err := svc.Register(ctx, "wallet-b", []byte("short"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("derivation is deterministic", func(t *testing.T) {
		first, err := svc.Get(ctx, "wallet-a")
		require.NoError(t, err)
		addr, _, err := address.New("idvault-test", 0).IdentityAddress("wallet-a")
		require.NoError(t, err)
		assert.Equal(t, addr, first.Address)
	})
}

func TestRotateCommitment(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "wallet-a", testCommitment(1))
	require.NoError(t, err)

	rotated, err := svc.RotateCommitment(ctx, "wallet-a", testCommitment(2))
	require.NoError(t, err)
	assert.Equal(t, testCommitment(2), rotated.Commitment)
	assert.EqualValues(t, 1, rotated.RecoveryCounter)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionCommitmentRotated, events[0].Action)
	assert.Equal(t, "owner rotation", events[0].Reason)
}

func TestRecover(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("refused inside the recovery window", func(t *testing.T) {
		svc, _ := newTestService(t)
		ctx := requestcontext.WithTime(context.Background(), base)
		_, err := svc.Register(ctx, "wallet-a", testCommitment(1))
		require.NoError(t, err)

		early := requestcontext.WithTime(context.Background(), base.Add(RecoveryPeriod-time.Hour))
		_, err = svc.Recover(early, "wallet-a", testCommitment(9))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		// The failed attempt must not touch the stored identity.
		id, err := svc.Get(context.Background(), "wallet-a")
		require.NoError(t, err)
		assert.Equal(t, testCommitment(1), id.Commitment)
		assert.EqualValues(t, 0, id.RecoveryCounter)
	})

	t.Run("allowed once the identity has been quiet long enough", func(t *testing.T) {
		svc, sink := newTestService(t)
		ctx := requestcontext.WithTime(context.Background(), base)
		_, err := svc.Register(ctx, "wallet-a", testCommitment(1))
		require.NoError(t, err)

		late := requestcontext.WithTime(context.Background(), base.Add(RecoveryPeriod))
		id, err := svc.Recover(late, "wallet-a", testCommitment(9))
		require.NoError(t, err)
		assert.Equal(t, testCommitment(9), id.Commitment)
		assert.EqualValues(t, 1, id.RecoveryCounter)

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "recovery", events[0].Reason)
	})
}

func TestVerificationBits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "wallet-a", testCommitment(1))
	require.NoError(t, err)

	require.NoError(t, svc.MarkVerified(ctx, "wallet-a", schema.TypeNationalID))
	require.NoError(t, svc.MarkVerified(ctx, "wallet-a", schema.TypeLicense))

	id, err := svc.Get(ctx, "wallet-a")
	require.NoError(t, err)
	bit, _ := schema.VerificationBit(schema.TypeNationalID)
	assert.True(t, id.HasBit(bit))
	bit, _ = schema.VerificationBit(schema.TypeTaxID)
	assert.False(t, id.HasBit(bit))

	require.NoError(t, svc.ClearVerified(ctx, "wallet-a", schema.TypeNationalID))
	id, err = svc.Get(ctx, "wallet-a")
	require.NoError(t, err)
	bit, _ = schema.VerificationBit(schema.TypeNationalID)
	assert.False(t, id.HasBit(bit))
	bit, _ = schema.VerificationBit(schema.TypeLicense)
	assert.True(t, id.HasBit(bit), "clearing one type must not disturb others")

	err = svc.MarkVerified(ctx, "wallet-a", schema.CredentialType("passport"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownCredentialType))
}
