package audit

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idvault/internal/platform/logger"
	"idvault/internal/platform/metrics"
	"idvault/pkg/requestcontext"
)

type failingSink struct{}

func (failingSink) Publish(context.Context, Event) error { return errors.New("broker down") }
func (failingSink) Close() error                         { return nil }

func TestEmit_StampsAndDelivers(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, logger.New(io.Discard), metrics.New(prometheus.NewRegistry()))

	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	p.Emit(ctx, Event{
		WalletID: "wallet-1",
		Action:   ActionGrantCreated,
		Subject:  "grant-addr",
	})

	events := sink.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, "req-42", events[0].RequestID)
	assert.Equal(t, ActionGrantCreated, events[0].Action)
}

func TestEmit_SinkFailureIsFailOpenAndCounted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := NewPublisher(failingSink{}, logger.New(io.Discard), m)

	p.Emit(context.Background(), Event{Action: ActionTokenReuseDetected})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditPublishErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AuditEventsEmitted))
}
