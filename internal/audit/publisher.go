package audit

import (
	"context"
	"log/slog"
	"time"

	"idvault/internal/platform/metrics"
	"idvault/pkg/requestcontext"
)

// Sink delivers audit events to a backing system.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Publisher captures structured audit events. Delivery failures are logged
// and counted but do not fail the emitting operation; security-significant
// events are still observable through metrics when the sink is down.
type Publisher struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPublisher(sink Sink, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{sink: sink, logger: logger, metrics: m}
}

// Emit stamps and publishes an event. The request ID is taken from ctx when
// the caller has not set one.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.sink.Publish(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.AuditPublishErrors.Inc()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit publish failed",
				"action", string(event.Action),
				"wallet_id", event.WalletID,
				"error", err,
			)
		}
		return
	}
	if p.metrics != nil {
		p.metrics.AuditEventsEmitted.Inc()
	}
}

// Close releases the underlying sink.
func (p *Publisher) Close() error {
	return p.sink.Close()
}
