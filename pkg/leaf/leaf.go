// Copyright 2025 Certen Protocol
//
// Leaf Codec — canonical byte layout for one payout leaf and for the
// distribution identifier that separates one distribution's leaves from
// every other's.
//
// Both encodings are total, deterministic, and allocation-light; neither
// performs I/O or returns an error, matching the contract of whatever
// on-chain verifier reconstructs the same bytes.

package leaf

import (
	"crypto/sha256"
	"encoding/binary"
)

// Size is the width, in bytes, of every digest this package produces.
const Size = 32

// DomainSeparator is mixed into every leaf digest. It is distinct from
// DistributionIDTag (per spec.md §9 Open Questions: the source left this
// unspecified; this implementation treats them as separate strings to
// avoid an accidental collision between a leaf and a distribution id).
//
// Changing this string invalidates every previously built distribution:
// leaves computed under the old tag will never fold to a root computed
// under the new one.
const DomainSeparator = "certen-merkle-distributor/leaf/v1"

// DistributionIDTag seeds the distribution identifier derivation. Kept
// distinct from DomainSeparator (see above).
const DistributionIDTag = "certen-merkle-distributor/distribution-id/v1"

// Digest is a 32-byte hash output. Used for leaves, distribution ids, and
// Merkle nodes throughout this module.
type Digest [Size]byte

// Identity carries the inputs that derive a DistributionID (§3). Two
// distributions differing in any field produce disjoint ids, and
// therefore disjoint leaves and disjoint on-chain state.
type Identity struct {
	RewardID    string
	WindowID    string
	Mint        string
	TotalAmount uint64
}

// DistributionID derives the 32-byte distribution identifier from
// (domain_id_tag, reward_id, window_id, mint, total_amount). The full 32
// bytes are used verbatim; spec.md §9 flags a truncated (first-16-hex-char)
// variant seen in some source material as incompatible with the on-chain
// account layout — this implementation never produces or accepts that
// truncated form.
func DistributionID(id Identity) Digest {
	h := sha256.New()
	h.Write([]byte(DistributionIDTag))
	h.Write([]byte(id.RewardID))
	h.Write([]byte(id.WindowID))
	h.Write([]byte(id.Mint))
	writeUint64LE(h, id.TotalAmount)

	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Encode computes the canonical 32-byte leaf digest for one payout entry:
//
//	leaf = H( DOMAIN_SEPARATOR || distribution_id || recipient || amount_le_u64 )
//
// Byte concatenation order is fixed and total; there is no field framing,
// length prefix, or padding. A single byte of drift anywhere in this
// function breaks interoperability with any on-chain verifier reading the
// same wire format (§6).
func Encode(distributionID Digest, recipient [32]byte, amount uint64) Digest {
	h := sha256.New()
	h.Write([]byte(DomainSeparator))
	h.Write(distributionID[:])
	h.Write(recipient[:])
	writeUint64LE(h, amount)

	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

func writeUint64LE(w interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}
