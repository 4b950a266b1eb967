package verification

import (
	"time"

	"github.com/google/uuid"

	"idvault/internal/decision"
	"idvault/internal/schema"
)

// StageName identifies one pipeline stage. Stages always execute in the
// order of StageOrder; there is no dynamic stage set.
type StageName string

const (
	StageDocumentAnalysis StageName = "document_analysis"
	StageFraudCheck       StageName = "fraud_check"
	StageComplianceCheck  StageName = "compliance_check"
	StageDecision         StageName = "decision"
	StageFinalize         StageName = "finalize"
)

// StageOrder is the fixed execution order.
var StageOrder = []StageName{
	StageDocumentAnalysis,
	StageFraudCheck,
	StageComplianceCheck,
	StageDecision,
	StageFinalize,
}

// StageStatus is the lifecycle of a single stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageSuccess    StageStatus = "success"
	StageFailed     StageStatus = "failed"
)

// Stage is one entry in a record's ordered stage list.
type Stage struct {
	Name        StageName   `json:"name"`
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// OverallStatus is the record-level lifecycle.
type OverallStatus string

const (
	StatusPending    OverallStatus = "pending"
	StatusInProgress OverallStatus = "in_progress"
	StatusVerified   OverallStatus = "verified"
	StatusFailed     OverallStatus = "failed"
)

// Record is one run of the verification pipeline. The stage list is fixed at
// construction; readers always see a consistent snapshot because the
// pipeline persists copies, never shares its working record.
type Record struct {
	ID             uuid.UUID             `json:"verification_id"`
	WalletID       string                `json:"wallet_id"`
	CredentialType schema.CredentialType `json:"credential_type"`
	Stages         []Stage               `json:"stages"`
	Progress       int                   `json:"progress"`
	OverallStatus  OverallStatus         `json:"overall_status"`
	Error          string                `json:"error,omitempty"`
	Decision       *decision.Decision    `json:"decision,omitempty"`
	Provenance     *decision.Provenance  `json:"provenance,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewRecord builds a pending record with every stage pending.
func NewRecord(walletID string, credentialType schema.CredentialType, now time.Time) *Record {
	stages := make([]Stage, len(StageOrder))
	for i, name := range StageOrder {
		stages[i] = Stage{Name: name, Status: StagePending}
	}
	return &Record{
		ID:             uuid.New(),
		WalletID:       walletID,
		CredentialType: credentialType,
		Stages:         stages,
		Progress:       0,
		OverallStatus:  StatusPending,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

// Terminal reports whether the record reached an immutable end state.
func (r *Record) Terminal() bool {
	return r.OverallStatus == StatusVerified || r.OverallStatus == StatusFailed
}

// StageIndex returns the position of a stage name, or -1.
func (r *Record) StageIndex(name StageName) int {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return i
		}
	}
	return -1
}

// Clone deep-copies the record so stores and readers never alias the
// pipeline's working copy.
func (r *Record) Clone() *Record {
	out := *r
	out.Stages = make([]Stage, len(r.Stages))
	copy(out.Stages, r.Stages)
	if r.Decision != nil {
		d := *r.Decision
		out.Decision = &d
	}
	if r.Provenance != nil {
		p := *r.Provenance
		p.Assumptions = append([]string(nil), r.Provenance.Assumptions...)
		out.Provenance = &p
	}
	return &out
}
