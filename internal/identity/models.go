package identity

import (
	"time"
)

// CommitmentSize is the required byte length of a DID commitment digest.
const CommitmentSize = 32

// RecoveryPeriod is the minimum quiet time since the last update before a
// recovery may rotate the commitment without the owner's key.
const RecoveryPeriod = 30 * 24 * time.Hour

// Identity is the owning principal for credentials and sessions. WalletID is
// external, unique and never reassigned; the derived address is stable for
// the life of the record.
type Identity struct {
	WalletID         string    `json:"wallet_id"`
	Address          string    `json:"address"`
	Salt             byte      `json:"salt"`
	Commitment       []byte    `json:"commitment,omitempty"`
	VerificationBits uint32    `json:"verification_bits"`
	RecoveryCounter  uint64    `json:"recovery_counter"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasBit reports whether the verification bit at index is set.
func (i *Identity) HasBit(index uint8) bool {
	return i.VerificationBits&(1<<index) != 0
}

// Clone returns a copy with its own commitment buffer.
func (i *Identity) Clone() *Identity {
	out := *i
	out.Commitment = append([]byte(nil), i.Commitment...)
	return &out
}
