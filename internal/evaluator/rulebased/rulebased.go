// Package rulebased provides deterministic reference evaluators.
//
// They stand in for the production document/fraud/compliance services in
// development and tests. The rules are intentionally crude; the point is a
// working end-to-end pipeline with the real verdict schema.
package rulebased

import (
	"context"
	"strings"

	"idvault/internal/evaluator"
)

// DocumentAnalyzer scores a submitted document. An empty document fails the
// stage outright; otherwise confidence scales with how much of the expected
// structure is present.
type DocumentAnalyzer struct{}

func (DocumentAnalyzer) Evaluate(_ context.Context, input evaluator.Input) (evaluator.Verdict, error) {
	if len(input.Document) == 0 {
		return evaluator.Verdict{Success: false, Err: "empty document"}, nil
	}

	doc := string(input.Document)
	confidence := 0.5
	for _, marker := range []string{"name", "dob", "id"} {
		if strings.Contains(strings.ToLower(doc), marker) {
			confidence += 0.15
		}
	}
	if confidence > 1 {
		confidence = 1
	}

	return evaluator.Verdict{
		Success: true,
		Data: map[string]any{
			evaluator.KeyConfidence: confidence,
			evaluator.KeyFields:     map[string]any{"raw_length": float64(len(input.Document))},
		},
	}, nil
}

// FraudChecker assigns a risk score from simple content heuristics.
type FraudChecker struct{}

func (FraudChecker) Evaluate(_ context.Context, input evaluator.Input) (evaluator.Verdict, error) {
	risk := 0.05
	doc := strings.ToLower(string(input.Document))
	for _, marker := range []string{"duplicate", "tampered", "photoshop"} {
		if strings.Contains(doc, marker) {
			risk += 0.4
		}
	}
	if risk > 1 {
		risk = 1
	}

	return evaluator.Verdict{
		Success: true,
		Data:    map[string]any{evaluator.KeyRiskScore: risk},
	}, nil
}

// ComplianceChecker verifies the submission against the data handling rules.
type ComplianceChecker struct{}

func (ComplianceChecker) Evaluate(_ context.Context, input evaluator.Input) (evaluator.Verdict, error) {
	doc := strings.ToLower(string(input.Document))
	// Storing raw biometric payloads is disallowed; their presence in the
	// submission is a compliance violation.
	biometric := strings.Contains(doc, "fingerprint_data") || strings.Contains(doc, "iris_scan")

	return evaluator.Verdict{
		Success: true,
		Data: map[string]any{
			evaluator.KeyAadhaarLikeCompliant:    !biometric,
			evaluator.KeyDataProtectionCompliant: true,
		},
	}, nil
}
