package credential

import (
	"time"

	"idvault/internal/schema"
)

// Credential is a typed, hashed claim set owned by one identity. The raw
// claims never persist; only the claims hash does, and it is immutable after
// issuance. Revocation is monotonic: a revoked credential never comes back.
type Credential struct {
	Address          string                `json:"address"`
	OwnerWalletID    string                `json:"owner_wallet_id"`
	CredentialType   schema.CredentialType `json:"credential_type"`
	ClaimsHash       []byte                `json:"claims_hash"`
	IssuerID         string                `json:"issuer_id"`
	Salt             byte                  `json:"salt"`
	IssuedAt         time.Time             `json:"issued_at"`
	Expiry           *time.Time            `json:"expiry,omitempty"`
	Revoked          bool                  `json:"revoked"`
	RevocationReason string                `json:"revocation_reason,omitempty"`
}

// Active reports whether the credential is usable at t: issued, not revoked,
// not past its expiry.
func (c *Credential) Active(t time.Time) bool {
	if c.Revoked {
		return false
	}
	if c.Expiry != nil && !t.Before(*c.Expiry) {
		return false
	}
	return true
}

// Clone returns a copy with its own hash buffer.
func (c *Credential) Clone() *Credential {
	out := *c
	out.ClaimsHash = append([]byte(nil), c.ClaimsHash...)
	if c.Expiry != nil {
		e := *c.Expiry
		out.Expiry = &e
	}
	return &out
}
