// Package evaluator defines the port each verification stage calls through.
//
// The pipeline never assumes anything about how a verdict was produced; a
// rule engine, an ML model, or a remote LLM agent are interchangeable behind
// Port as long as they return the fixed verdict shape.
package evaluator

import (
	"context"

	"idvault/internal/schema"
)

// Verdict is the typed result of one evaluator call. Success=false is a
// stage failure regardless of Data contents.
type Verdict struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// Input is what a stage evaluator sees: the submission plus the accumulated
// output of prior stages. Evaluators must treat Prior as read-only and get
// no visibility into later stages.
type Input struct {
	WalletID       string
	CredentialType schema.CredentialType
	Document       []byte
	Prior          map[string]map[string]any
}

// Port is a synchronous evaluator for one pipeline stage.
type Port interface {
	Evaluate(ctx context.Context, input Input) (Verdict, error)
}

// Well-known Data keys the decision policy reads.
const (
	KeyConfidence              = "confidence"
	KeyRiskScore               = "risk_score"
	KeyAadhaarLikeCompliant    = "aadhaar_like_compliant"
	KeyDataProtectionCompliant = "data_protection_compliant"
	KeyFields                  = "fields"
)

// Float reads a float64 from verdict data, tolerating missing keys.
func Float(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Bool reads a bool from verdict data, tolerating missing keys.
func Bool(data map[string]any, key string) (bool, bool) {
	v, ok := data[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
