// Package decision maps aggregated stage evidence to a policy decision.
//
// This is pure domain logic - no I/O, no side effects, no hidden state.
// Identical inputs always produce identical decisions. The thresholds are
// configuration, and every decision records the values actually applied so
// historical explanations survive later config changes.
package decision

import (
	"fmt"
	"time"
)

// Outcome enumerates the possible verification decisions.
type Outcome string

const (
	OutcomeApprove      Outcome = "approve"
	OutcomeReject       Outcome = "reject"
	OutcomeManualReview Outcome = "manual_review"
)

// Thresholds are the tunable policy knobs, injected from config.
type Thresholds struct {
	// Risk above which a submission is rejected outright.
	Risk float64
	// Confidence below which a submission needs human review.
	Confidence float64
}

// Evidence groups the signals the policy considers.
type Evidence struct {
	RiskScore               float64
	AadhaarLikeCompliant    bool
	DataProtectionCompliant bool
	DocumentConfidence      float64

	// StageEvidence is the per-stage raw verdict data, carried into the
	// provenance record untouched.
	StageEvidence map[string]map[string]any
}

// Decision is the policy verdict plus its human-readable reason.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`
}

// Provenance is the immutable decision artifact. Assumptions capture the
// thresholds and rules applied at decision time.
type Provenance struct {
	Decision    Outcome                   `json:"decision"`
	Reason      string                    `json:"reason"`
	Evidence    map[string]map[string]any `json:"evidence"`
	Assumptions []string                  `json:"assumptions"`
	DecidedAt   time.Time                 `json:"decided_at"`
}

// Policy applies the rule chain. Construct once at startup with the
// configured thresholds.
type Policy struct {
	thresholds Thresholds
}

func NewPolicy(t Thresholds) *Policy {
	return &Policy{thresholds: t}
}

// Decide evaluates the rules in priority order; the first matching rule wins.
//  1. Fraud risk above threshold - hard reject.
//  2. Any compliance check failed - hard reject, reason names the check.
//  3. Document confidence below threshold - manual review.
//  4. Otherwise approve.
func (p *Policy) Decide(ev Evidence, now time.Time) (Decision, Provenance) {
	var d Decision
	switch {
	case ev.RiskScore > p.thresholds.Risk:
		d = Decision{OutcomeReject, fmt.Sprintf("high fraud risk (%.2f)", ev.RiskScore)}
	case !ev.AadhaarLikeCompliant:
		d = Decision{OutcomeReject, "compliance violation: aadhaar-like check failed"}
	case !ev.DataProtectionCompliant:
		d = Decision{OutcomeReject, "compliance violation: data protection check failed"}
	case ev.DocumentConfidence < p.thresholds.Confidence:
		d = Decision{OutcomeManualReview, fmt.Sprintf("low document confidence (%.2f)", ev.DocumentConfidence)}
	default:
		d = Decision{OutcomeApprove, "all checks passed"}
	}

	prov := Provenance{
		Decision:    d.Outcome,
		Reason:      d.Reason,
		Evidence:    ev.StageEvidence,
		Assumptions: p.assumptions(),
		DecidedAt:   now.UTC(),
	}
	return d, prov
}

// assumptions echoes the live thresholds verbatim so each provenance record
// is self-explaining without consulting config.
func (p *Policy) assumptions() []string {
	return []string{
		fmt.Sprintf("risk threshold: %.2f (risk_score > %.2f -> reject)", p.thresholds.Risk, p.thresholds.Risk),
		fmt.Sprintf("confidence threshold: %.2f (confidence < %.2f -> manual_review)", p.thresholds.Confidence, p.thresholds.Confidence),
		"aadhaar-like and data protection compliance required",
	}
}
