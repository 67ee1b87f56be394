package rental

import (
	"filippo.io/edwards25519"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// NamespaceTag is the default seed prefix for rental record addresses.
const NamespaceTag = "rentable-tokens"

const (
	derivationMarker = "ProgramDerivedAddress"
	custodySeed      = "rental-custody"
)

// ProgramID identifies the rental module in derived addresses so records of
// different modules can never collide.
var ProgramID = programID("native/rental")

func programID(name string) [20]byte {
	var id [20]byte
	copy(id[:], ethcrypto.Keccak256([]byte(name))[12:])
	return id
}

// RecordRef is the record address presented by a client together with its
// derivation proof.
type RecordRef struct {
	Address [20]byte
	Bump    uint8
}

// candidateDigest hashes the seeds for a single bump value. A digest is viable
// only when it does not decode to an ed25519 point; the filter fixes which bump
// is canonical and says nothing about secp256k1 keys for the truncated address.
func candidateDigest(tag []byte, owner [20]byte, bump uint8) ([]byte, bool) {
	digest := ethcrypto.Keccak256(tag, owner[:], []byte{bump}, ProgramID[:], []byte(derivationMarker))
	if _, err := new(edwards25519.Point).SetBytes(digest); err == nil {
		return digest, false
	}
	return digest, true
}

// DeriveAddress returns the record address for owner under the namespace tag
// and the canonical bump: the highest bump whose digest is off-curve.
func DeriveAddress(tag []byte, owner [20]byte) ([20]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		digest, ok := candidateDigest(tag, owner, uint8(bump))
		if !ok {
			continue
		}
		var addr [20]byte
		copy(addr[:], digest[12:])
		return addr, uint8(bump), nil
	}
	return [20]byte{}, 0, ErrNoViableBump
}

// VerifyAddress reports whether addr and bump are exactly the canonical
// derivation for owner. Non-canonical bumps are rejected even when their
// digest happens to be off-curve.
func VerifyAddress(addr [20]byte, bump uint8, tag []byte, owner [20]byte) bool {
	expected, canonical, err := DeriveAddress(tag, owner)
	if err != nil {
		return false
	}
	return canonical == bump && expected == addr
}

// CustodyAddress derives the escrow custody account for the record and mint.
func CustodyAddress(record [20]byte, mint [32]byte) [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte(custodySeed), record[:], mint[:])[12:])
	return addr
}
