// Package metrics registers the Prometheus instruments for the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	StageLatency       *prometheus.HistogramVec
	DecisionsTotal     *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec

	GrantsCreated prometheus.Counter
	GrantsRevoked prometheus.Counter
	GrantsSwept   prometheus.Counter

	SessionsIssued      prometheus.Counter
	TokenReuseDetected  prometheus.Counter
	CredentialsIssued   prometheus.Counter
	CredentialsRevoked  prometheus.Counter
	AuditPublishErrors  prometheus.Counter
	AuditEventsEmitted  prometheus.Counter
}

// New creates and registers all metrics on the given registerer. Passing a
// fresh registry keeps tests independent of the default global.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_verifications_total",
			Help: "Verification pipeline runs by terminal status.",
		}, []string{"status"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idvault_stage_latency_seconds",
			Help:    "Latency of individual verification stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_decisions_total",
			Help: "Policy decisions by outcome.",
		}, []string{"outcome"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idvault_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		GrantsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_grants_created_total",
			Help: "Access grants created.",
		}),
		GrantsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_grants_revoked_total",
			Help: "Access grants revoked.",
		}),
		GrantsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_grants_swept_total",
			Help: "Expired grants archived by the sweeper.",
		}),
		SessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_sessions_issued_total",
			Help: "Session token pairs issued (login and refresh).",
		}),
		TokenReuseDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_token_reuse_detected_total",
			Help: "Refresh token replay attempts detected.",
		}),
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_credentials_issued_total",
			Help: "Credentials issued after approval.",
		}),
		CredentialsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_credentials_revoked_total",
			Help: "Credentials revoked.",
		}),
		AuditPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_audit_publish_errors_total",
			Help: "Audit events that failed to publish.",
		}),
		AuditEventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "idvault_audit_events_total",
			Help: "Audit events emitted.",
		}),
	}
}

// ObserveStage records the latency of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}
