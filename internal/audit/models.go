package audit

import "time"

// Action names the auditable operations. Keep these stable; downstream
// consumers filter on them.
type Action string

const (
	ActionVerificationDecided Action = "verification.decided"
	ActionCredentialIssued    Action = "credential.issued"
	ActionCredentialRevoked   Action = "credential.revoked"
	ActionGrantCreated        Action = "grant.created"
	ActionGrantRevoked        Action = "grant.revoked"
	ActionSessionRevoked      Action = "session.revoked"
	ActionTokenReuseDetected  Action = "session.token_reuse_detected"
	ActionCommitmentRotated   Action = "identity.commitment_rotated"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	WalletID  string            `json:"wallet_id,omitempty"`
	Action    Action            `json:"action"`
	Subject   string            `json:"subject,omitempty"`
	Decision  string            `json:"decision,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}
