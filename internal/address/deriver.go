// Package address derives deterministic, collision-free account identifiers.
//
// Every account the service tracks (identity, credential, access grant) is
// addressed by a digest over (program tag, namespace, seeds, salt). The target
// encoding mirrors an on-chain program-derived-address scheme: addresses are
// base58 and must be exactly AddressLength characters, which excludes digests
// with small leading bytes. A single-byte salt is probed from 255 downward
// until the digest satisfies the constraint.
package address

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mr-tron/base58"

	dErrors "idvault/pkg/domainerrors"
)

// AddressLength is the required encoded length. A 32-byte digest encodes to
// 44 base58 characters unless its leading bytes are small.
const AddressLength = 44

// Namespaces for the account kinds this service derives.
const (
	NamespaceIdentity   = "identity"
	NamespaceCredential = "credential"
	NamespaceGrant      = "grant"
)

// Deriver computes namespaced addresses for a fixed program tag.
type Deriver struct {
	programTag []byte
	saltFloor  uint8
}

// New creates a Deriver. programTag distinguishes deployments sharing a
// database; saltFloor bounds the probe range (0 probes the full 255..0).
func New(programTag string, saltFloor uint8) *Deriver {
	return &Deriver{programTag: []byte(programTag), saltFloor: saltFloor}
}

// Derive returns the address and salt for (namespace, seeds). For fixed
// inputs the result never changes. Exhausting the salt range is a
// configuration-integrity failure, not a retryable condition.
func (d *Deriver) Derive(namespace string, seeds ...[]byte) (string, byte, error) {
	for salt := 255; salt >= int(d.saltFloor); salt-- {
		digest := d.digest(namespace, seeds, byte(salt))
		encoded := base58.Encode(digest)
		if len(encoded) == AddressLength {
			return encoded, byte(salt), nil
		}
	}
	return "", 0, dErrors.Newf(dErrors.CodeConfigIntegrity,
		"address derivation exhausted salt range for namespace %q", namespace)
}

// digest hashes programTag ‖ namespace ‖ seeds ‖ salt. Each seed is length
// prefixed so distinct seed splits can never produce the same preimage.
func (d *Deriver) digest(namespace string, seeds [][]byte, salt byte) []byte {
	h := sha256.New()
	h.Write(d.programTag)
	h.Write([]byte(namespace))
	var lenBuf [4]byte
	for _, seed := range seeds {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(seed)))
		h.Write(lenBuf[:])
		h.Write(seed)
	}
	h.Write([]byte{salt})
	return h.Sum(nil)
}

// IdentityAddress derives the identity account address for a wallet.
func (d *Deriver) IdentityAddress(walletID string) (string, byte, error) {
	return d.Derive(NamespaceIdentity, []byte(walletID))
}

// CredentialAddress derives the credential account address.
func (d *Deriver) CredentialAddress(ownerWalletID, credentialType, issuerID string) (string, byte, error) {
	return d.Derive(NamespaceCredential, []byte(ownerWalletID), []byte(credentialType), []byte(issuerID))
}

// GrantAddress derives the access grant account address.
func (d *Deriver) GrantAddress(credentialAddress, grantorWalletID, purpose string) (string, byte, error) {
	return d.Derive(NamespaceGrant, []byte(credentialAddress), []byte(grantorWalletID), []byte(purpose))
}
