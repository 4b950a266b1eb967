package grant

import "time"

// Grant is a time-bound, field-scoped disclosure permission over one
// credential. Purpose is logged but never enforced. A grant is active iff it
// is not revoked and now is before ExpiresAt; archival is bookkeeping on top
// of expiry and never affects activity.
type Grant struct {
	Address           string    `json:"address"`
	CredentialAddress string    `json:"credential_address"`
	GrantorWalletID   string    `json:"grantor_wallet_id"`
	GranteeWalletID   string    `json:"grantee_wallet_id"`
	Purpose           string    `json:"purpose,omitempty"`
	FieldMask         uint64    `json:"field_mask"`
	Salt              byte      `json:"salt"`
	ExpiresAt         time.Time `json:"expires_at"`
	Revoked           bool      `json:"revoked"`
	Archived          bool      `json:"archived"`
	CreatedAt         time.Time `json:"created_at"`
}

// Active reports whether the grant permits disclosure at t.
func (g *Grant) Active(t time.Time) bool {
	return !g.Revoked && t.Before(g.ExpiresAt)
}

// PermitsBit reports whether field bit i is inside the grant's mask.
func (g *Grant) PermitsBit(i uint8) bool {
	return g.FieldMask&(1<<i) != 0
}

// Clone returns a copy of the grant.
func (g *Grant) Clone() *Grant {
	out := *g
	return &out
}
