package verification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idvault/internal/audit"
	"idvault/internal/decision"
	"idvault/internal/evaluator"
	"idvault/internal/platform/metrics"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
	"idvault/pkg/requestcontext"
)

// Evaluators are the per-stage ports the pipeline calls. The decision and
// finalize stages are internal and have no evaluator.
type Evaluators struct {
	DocumentAnalysis evaluator.Port
	FraudCheck       evaluator.Port
	ComplianceCheck  evaluator.Port
}

// Pipeline runs the staged verification workflow.
//
// Concurrency: stage transitions for one record are applied under a lock
// keyed by the record ID; evaluator calls happen outside that lock so status
// readers never block on in-flight evaluations. Distinct records proceed
// fully in parallel.
type Pipeline struct {
	evaluators Evaluators
	policy     *decision.Policy
	store      Store
	logger     *slog.Logger
	metrics    *metrics.Metrics
	auditor    *audit.Publisher
	timeout    time.Duration
	tracer     trace.Tracer

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewPipeline wires the pipeline. metrics and auditor may be nil.
func NewPipeline(
	evaluators Evaluators,
	policy *decision.Policy,
	store Store,
	logger *slog.Logger,
	m *metrics.Metrics,
	auditor *audit.Publisher,
	evaluatorTimeout time.Duration,
) *Pipeline {
	return &Pipeline{
		evaluators: evaluators,
		policy:     policy,
		store:      store,
		logger:     logger,
		metrics:    m,
		auditor:    auditor,
		timeout:    evaluatorTimeout,
		tracer:     otel.Tracer("idvault/verification"),
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// Run executes all stages for a new verification and returns the terminal
// record. Evaluator failures terminate the record at failed; they are not
// errors from Run. Retry means a fresh Run, never a resume.
func (p *Pipeline) Run(ctx context.Context, walletID string, credentialType schema.CredentialType, document []byte) (*Record, error) {
	if walletID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet_id is required")
	}
	if !schema.Known(credentialType) {
		return nil, dErrors.Newf(dErrors.CodeUnknownCredentialType, "unknown credential type %q", credentialType)
	}

	record := NewRecord(walletID, credentialType, requestcontext.Now(ctx))
	if err := p.store.Save(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist verification record")
	}
	defer p.releaseLock(record.ID)

	ctx, span := p.tracer.Start(ctx, "verification.run", trace.WithAttributes(
		attribute.String("verification_id", record.ID.String()),
		attribute.String("credential_type", string(credentialType)),
	))
	defer span.End()

	input := evaluator.Input{
		WalletID:       walletID,
		CredentialType: credentialType,
		Document:       document,
		Prior:          make(map[string]map[string]any),
	}

	verdicts := make(map[StageName]evaluator.Verdict)
	evalStages := []struct {
		name StageName
		port evaluator.Port
	}{
		{StageDocumentAnalysis, p.evaluators.DocumentAnalysis},
		{StageFraudCheck, p.evaluators.FraudCheck},
		{StageComplianceCheck, p.evaluators.ComplianceCheck},
	}

	for _, stage := range evalStages {
		if err := p.beginStage(ctx, record, stage.name); err != nil {
			return nil, err
		}

		verdict := p.invoke(ctx, stage.name, stage.port, input)
		if !verdict.Success {
			// Fail-fast: the record terminates here, later stages are
			// never invoked, and the evaluator's error survives.
			if err := p.failStage(ctx, record, stage.name, verdict.Err); err != nil {
				return nil, err
			}
			if p.metrics != nil {
				p.metrics.VerificationsTotal.WithLabelValues(string(StatusFailed)).Inc()
			}
			return record.Clone(), nil
		}

		verdicts[stage.name] = verdict
		input.Prior[string(stage.name)] = verdict.Data
		if err := p.completeStage(ctx, record, stage.name); err != nil {
			return nil, err
		}
	}

	if err := p.beginStage(ctx, record, StageDecision); err != nil {
		return nil, err
	}
	d, prov := p.policy.Decide(buildEvidence(verdicts), requestcontext.Now(ctx))
	if err := p.applyTransition(ctx, record, func(r *Record) {
		r.Decision = &d
		r.Provenance = &prov
		completeStageLocked(r, StageDecision, time.Now().UTC())
	}); err != nil {
		return nil, err
	}

	if err := p.beginStage(ctx, record, StageFinalize); err != nil {
		return nil, err
	}
	if err := p.applyTransition(ctx, record, func(r *Record) {
		completeStageLocked(r, StageFinalize, time.Now().UTC())
		r.OverallStatus = StatusVerified
		r.Progress = 100
	}); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.VerificationsTotal.WithLabelValues(string(StatusVerified)).Inc()
		p.metrics.DecisionsTotal.WithLabelValues(string(d.Outcome)).Inc()
	}
	if p.auditor != nil {
		p.auditor.Emit(ctx, audit.Event{
			WalletID: walletID,
			Action:   audit.ActionVerificationDecided,
			Subject:  record.ID.String(),
			Decision: string(d.Outcome),
			Reason:   d.Reason,
		})
	}
	p.logger.InfoContext(ctx, "verification completed",
		"verification_id", record.ID.String(),
		"wallet_id", walletID,
		"decision", string(d.Outcome),
	)

	return record.Clone(), nil
}

// GetStatus serves the read model straight from the persisted record.
func (p *Pipeline) GetStatus(ctx context.Context, id uuid.UUID) (*Record, error) {
	record, err := p.store.FindByID(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "verification not found")
	}
	return record, nil
}

// ListByWallet returns a wallet's verification history, newest first.
func (p *Pipeline) ListByWallet(ctx context.Context, walletID string) ([]*Record, error) {
	records, err := p.store.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return records, nil
}

// invoke calls one evaluator with a bounded timeout and a span. A timeout or
// transport error is a stage failure, not a pipeline error.
func (p *Pipeline) invoke(ctx context.Context, name StageName, port evaluator.Port, input evaluator.Input) evaluator.Verdict {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "stage."+string(name))
	defer span.End()

	start := time.Now()
	verdict, err := port.Evaluate(ctx, input)
	if p.metrics != nil {
		p.metrics.ObserveStage(string(name), time.Since(start))
	}

	if err != nil {
		span.RecordError(err)
		p.logger.ErrorContext(ctx, "evaluator call failed",
			"stage", string(name),
			"error", err,
		)
		return evaluator.Verdict{Success: false, Err: err.Error()}
	}
	if !verdict.Success {
		span.SetAttributes(attribute.String("verdict_error", verdict.Err))
	}
	return verdict
}

// buildEvidence extracts policy inputs from the stage verdicts. Missing keys
// fall back to the conservative defaults the original rules assumed: zero
// risk, compliant, zero confidence (which forces manual review).
func buildEvidence(verdicts map[StageName]evaluator.Verdict) decision.Evidence {
	ev := decision.Evidence{
		AadhaarLikeCompliant:    true,
		DataProtectionCompliant: true,
		StageEvidence:           make(map[string]map[string]any, len(verdicts)),
	}
	for name, v := range verdicts {
		ev.StageEvidence[string(name)] = v.Data
	}

	if c, ok := evaluator.Float(verdicts[StageDocumentAnalysis].Data, evaluator.KeyConfidence); ok {
		ev.DocumentConfidence = c
	}
	if r, ok := evaluator.Float(verdicts[StageFraudCheck].Data, evaluator.KeyRiskScore); ok {
		ev.RiskScore = r
	}
	if b, ok := evaluator.Bool(verdicts[StageComplianceCheck].Data, evaluator.KeyAadhaarLikeCompliant); ok {
		ev.AadhaarLikeCompliant = b
	}
	if b, ok := evaluator.Bool(verdicts[StageComplianceCheck].Data, evaluator.KeyDataProtectionCompliant); ok {
		ev.DataProtectionCompliant = b
	}
	return ev
}

// ---------------------------------------------------------------------------
// Stage transitions. Each transition mutates the working record under the
// per-record lock and persists the result before releasing it.
// ---------------------------------------------------------------------------

func (p *Pipeline) beginStage(ctx context.Context, record *Record, name StageName) error {
	return p.applyTransition(ctx, record, func(r *Record) {
		now := time.Now().UTC()
		idx := r.StageIndex(name)
		r.Stages[idx].Status = StageInProgress
		r.Stages[idx].StartedAt = &now
		r.OverallStatus = StatusInProgress
		r.UpdatedAt = now
	})
}

func (p *Pipeline) completeStage(ctx context.Context, record *Record, name StageName) error {
	return p.applyTransition(ctx, record, func(r *Record) {
		completeStageLocked(r, name, time.Now().UTC())
	})
}

func (p *Pipeline) failStage(ctx context.Context, record *Record, name StageName, reason string) error {
	return p.applyTransition(ctx, record, func(r *Record) {
		now := time.Now().UTC()
		idx := r.StageIndex(name)
		r.Stages[idx].Status = StageFailed
		r.Stages[idx].CompletedAt = &now
		r.OverallStatus = StatusFailed
		r.Error = reason
		r.UpdatedAt = now
	})
}

// completeStageLocked marks a stage done and recomputes progress as
// 100*k/n for k completed stages. Call only from within applyTransition.
func completeStageLocked(r *Record, name StageName, now time.Time) {
	idx := r.StageIndex(name)
	r.Stages[idx].Status = StageSuccess
	r.Stages[idx].CompletedAt = &now
	r.Progress = 100 * (idx + 1) / len(r.Stages)
	r.UpdatedAt = now
}

// applyTransition serializes mutations per record ID and persists the new
// snapshot. Terminal records are immutable; a late transition is a no-op.
func (p *Pipeline) applyTransition(ctx context.Context, record *Record, mutate func(*Record)) error {
	lock := p.lockFor(record.ID)
	lock.Lock()
	defer lock.Unlock()

	if record.Terminal() {
		return nil
	}
	mutate(record)
	if err := p.store.Save(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist stage transition")
	}
	return nil
}

func (p *Pipeline) lockFor(id uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	p.locks[id] = l
	return l
}

// releaseLock drops the per-record lock once the record is terminal; the
// record can no longer transition so the entry would only leak.
func (p *Pipeline) releaseLock(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locks, id)
}
