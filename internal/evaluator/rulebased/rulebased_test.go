package rulebased

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idvault/internal/evaluator"
)

func TestDocumentAnalyzer(t *testing.T) {
	ctx := context.Background()

	t.Run("empty document fails the stage", func(t *testing.T) {
		verdict, err := DocumentAnalyzer{}.Evaluate(ctx, evaluator.Input{})
		require.NoError(t, err)
		assert.False(t, verdict.Success)
		assert.NotEmpty(t, verdict.Err)
	})

	t.Run("confidence scales with structure markers", func(t *testing.T) {
		bare, err := DocumentAnalyzer{}.Evaluate(ctx, evaluator.Input{Document: []byte("xxxx")})
		require.NoError(t, err)
		full, err := DocumentAnalyzer{}.Evaluate(ctx, evaluator.Input{Document: []byte("name dob id")})
		require.NoError(t, err)

		bareConf, ok := evaluator.Float(bare.Data, evaluator.KeyConfidence)
		require.True(t, ok)
		fullConf, ok := evaluator.Float(full.Data, evaluator.KeyConfidence)
		require.True(t, ok)
		assert.Greater(t, fullConf, bareConf)
		assert.LessOrEqual(t, fullConf, 1.0)
	})
}

func TestFraudChecker(t *testing.T) {
	ctx := context.Background()

	clean, err := FraudChecker{}.Evaluate(ctx, evaluator.Input{Document: []byte("name dob id")})
	require.NoError(t, err)
	suspect, err := FraudChecker{}.Evaluate(ctx, evaluator.Input{Document: []byte("tampered duplicate photoshop")})
	require.NoError(t, err)

	cleanRisk, ok := evaluator.Float(clean.Data, evaluator.KeyRiskScore)
	require.True(t, ok)
	suspectRisk, ok := evaluator.Float(suspect.Data, evaluator.KeyRiskScore)
	require.True(t, ok)
	assert.Less(t, cleanRisk, 0.1)
	assert.Greater(t, suspectRisk, 0.7)
	assert.LessOrEqual(t, suspectRisk, 1.0)
}

func TestComplianceChecker(t *testing.T) {
	ctx := context.Background()

	ok, err := ComplianceChecker{}.Evaluate(ctx, evaluator.Input{Document: []byte("name dob id")})
	require.NoError(t, err)
	compliant, found := evaluator.Bool(ok.Data, evaluator.KeyAadhaarLikeCompliant)
	require.True(t, found)
	assert.True(t, compliant)

	// Raw biometric payloads may not be stored; their presence fails the check.
	bad, err := ComplianceChecker{}.Evaluate(ctx, evaluator.Input{Document: []byte("iris_scan: ...")})
	require.NoError(t, err)
	compliant, found = evaluator.Bool(bad.Data, evaluator.KeyAadhaarLikeCompliant)
	require.True(t, found)
	assert.False(t, compliant)
}
