package verification

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"idvault/internal/audit"
	"idvault/internal/decision"
	"idvault/internal/evaluator"
	"idvault/internal/evaluator/mocks"
	"idvault/internal/platform/logger"
	"idvault/internal/platform/metrics"
	"idvault/internal/schema"
	dErrors "idvault/pkg/domainerrors"
)

type pipelineFixture struct {
	docs       *mocks.MockPort
	fraud      *mocks.MockPort
	compliance *mocks.MockPort
	store      *InMemoryStore
	sink       *audit.MemorySink
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	ctrl := gomock.NewController(t)
	f := &pipelineFixture{
		docs:       mocks.NewMockPort(ctrl),
		fraud:      mocks.NewMockPort(ctrl),
		compliance: mocks.NewMockPort(ctrl),
		store:      NewInMemoryStore(),
		sink:       audit.NewMemorySink(),
	}

	log := logger.New(io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	f.pipeline = NewPipeline(
		Evaluators{
			DocumentAnalysis: f.docs,
			FraudCheck:       f.fraud,
			ComplianceCheck:  f.compliance,
		},
		decision.NewPolicy(decision.Thresholds{Risk: 0.7, Confidence: 0.6}),
		f.store,
		log,
		m,
		audit.NewPublisher(f.sink, log, m),
		time.Second,
	)
	return f
}

func successVerdict(data map[string]any) evaluator.Verdict {
	return evaluator.Verdict{Success: true, Data: data}
}

func TestRun_ApprovesCleanSubmission(t *testing.T) {
	f := newPipelineFixture(t)

	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{evaluator.KeyConfidence: 0.95}), nil)
	f.fraud.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{evaluator.KeyRiskScore: 0.05}), nil)
	f.compliance.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{
			evaluator.KeyAadhaarLikeCompliant:    true,
			evaluator.KeyDataProtectionCompliant: true,
		}), nil)

	record, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, []byte("doc"))
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, record.OverallStatus)
	assert.Equal(t, 100, record.Progress)
	require.NotNil(t, record.Decision)
	assert.Equal(t, decision.OutcomeApprove, record.Decision.Outcome)
	require.NotNil(t, record.Provenance)
	assert.NotEmpty(t, record.Provenance.Assumptions)

	for _, stage := range record.Stages {
		assert.Equal(t, StageSuccess, stage.Status, "stage %s", stage.Name)
		assert.NotNil(t, stage.CompletedAt, "stage %s", stage.Name)
	}

	// Decision was audited.
	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionVerificationDecided, events[0].Action)
	assert.Equal(t, string(decision.OutcomeApprove), events[0].Decision)
}

func TestRun_FailFastOnDocumentAnalysis(t *testing.T) {
	f := newPipelineFixture(t)

	// Fraud and compliance mocks get no expectations: any call would fail
	// the test, proving later stages are never invoked.
	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(evaluator.Verdict{Success: false, Err: "unreadable scan"}, nil)

	record, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, record.OverallStatus)
	assert.Equal(t, "unreadable scan", record.Error)
	assert.Nil(t, record.Decision)

	idx := record.StageIndex(StageDocumentAnalysis)
	assert.Equal(t, StageFailed, record.Stages[idx].Status)
	for _, name := range []StageName{StageFraudCheck, StageComplianceCheck, StageDecision, StageFinalize} {
		assert.Equal(t, StagePending, record.Stages[record.StageIndex(name)].Status, "stage %s", name)
	}
}

func TestRun_EvaluatorTransportErrorFailsStage(t *testing.T) {
	f := newPipelineFixture(t)

	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{evaluator.KeyConfidence: 0.9}), nil)
	f.fraud.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(evaluator.Verdict{}, errors.New("connection reset"))

	record, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, []byte("doc"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, record.OverallStatus)
	assert.Contains(t, record.Error, "connection reset")
	assert.Equal(t, StageFailed, record.Stages[record.StageIndex(StageFraudCheck)].Status)
}

func TestRun_EvaluatorTimeoutIsStageFailure(t *testing.T) {
	f := newPipelineFixture(t)

	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ evaluator.Input) (evaluator.Verdict, error) {
			<-ctx.Done()
			return evaluator.Verdict{}, ctx.Err()
		})

	// Shorten the timeout so the test does not sit on the full second.
	f.pipeline.timeout = 20 * time.Millisecond

	record, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, []byte("doc"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, record.OverallStatus)
	assert.Contains(t, record.Error, "deadline")
}

func TestRun_PriorStageDataFlowsForward(t *testing.T) {
	f := newPipelineFixture(t)

	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{evaluator.KeyConfidence: 0.9, "fields": "extracted"}), nil)
	f.fraud.EXPECT().Evaluate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, input evaluator.Input) (evaluator.Verdict, error) {
			prior := input.Prior[string(StageDocumentAnalysis)]
			require.NotNil(t, prior)
			assert.Equal(t, "extracted", prior["fields"])
			// No lookahead: compliance output must not be visible yet.
			assert.NotContains(t, input.Prior, string(StageComplianceCheck))
			return successVerdict(map[string]any{evaluator.KeyRiskScore: 0.1}), nil
		})
	f.compliance.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{
			evaluator.KeyAadhaarLikeCompliant:    true,
			evaluator.KeyDataProtectionCompliant: true,
		}), nil)

	_, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, []byte("doc"))
	require.NoError(t, err)
}

func TestRun_RejectsUnknownCredentialType(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.CredentialType("passport"), []byte("doc"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownCredentialType))
}

func TestGetStatus_ServesPersistedSnapshot(t *testing.T) {
	f := newPipelineFixture(t)

	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(evaluator.Verdict{Success: false, Err: "bad scan"}, nil)

	record, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, nil)
	require.NoError(t, err)

	got, err := f.pipeline.GetStatus(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.OverallStatus)
	assert.Equal(t, record.ID, got.ID)

	// Snapshot is a copy; mutating it must not leak into the store.
	got.Error = "tampered"
	again, err := f.pipeline.GetStatus(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "bad scan", again.Error)
}

func TestRun_ManualReviewOnLowConfidence(t *testing.T) {
	f := newPipelineFixture(t)

	f.docs.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{evaluator.KeyConfidence: 0.5}), nil)
	f.fraud.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{evaluator.KeyRiskScore: 0.1}), nil)
	f.compliance.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(successVerdict(map[string]any{
			evaluator.KeyAadhaarLikeCompliant:    true,
			evaluator.KeyDataProtectionCompliant: true,
		}), nil)

	record, err := f.pipeline.Run(context.Background(), "wallet-w1", schema.TypeNationalID, []byte("doc"))
	require.NoError(t, err)

	// A manual_review decision is still a completed pipeline run.
	assert.Equal(t, StatusVerified, record.OverallStatus)
	require.NotNil(t, record.Decision)
	assert.Equal(t, decision.OutcomeManualReview, record.Decision.Outcome)
}
