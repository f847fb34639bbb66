// Copyright 2025 Certen Protocol
//
// Verifier Contract interface (spec.md §4.7) — the byte-level contract the
// Relayer's transactions must match: deterministic account seeds and the
// wire-exact claim instruction. Adapted from this repository's multi-chain
// execution strategy pattern (pkg/chain/strategy), narrowed to the single
// Solana-shaped verifier program this spec targets.

package chainrpc

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Sentinel errors mirroring the error taxonomy in spec.md §7. Backends
// translate on-chain program failures into these so the Relayer can apply
// a uniform retry/terminal policy regardless of transport.
var (
	// ErrAlreadyClaimed means the uniqueness-marker account already exists:
	// the claim was already processed by a previous submission.
	ErrAlreadyClaimed = errors.New("chainrpc: already claimed")
	// ErrProofInvalid means the on-chain verifier rejected the Merkle proof.
	ErrProofInvalid = errors.New("chainrpc: proof invalid")
	// ErrInsufficientFunds means the vault lacks the funds to pay the claim.
	ErrInsufficientFunds = errors.New("chainrpc: insufficient vault funds")
	// ErrTransportFailure means a transient RPC/network error occurred.
	ErrTransportFailure = errors.New("chainrpc: transport failure")
	// ErrExpired means the transaction's recent-reference window elapsed
	// before it landed; treated identically to ErrTransportFailure by the
	// Relayer (spec.md §7).
	ErrExpired = errors.New("chainrpc: recent reference expired")
)

const (
	// claimSeed, vaultSeed, and distributionSeed are the seed tags spec.md
	// §6 requires verbatim for deterministic account derivation.
	claimSeed        = "claim"
	vaultSeed        = "vault"
	distributionSeed = "distribution"
)

// DeriveDistributionAddress derives the distribution account address from
// ("distribution", distribution_id). There is no Solana SDK in this
// module's dependency graph to perform the curve-based find-program-address
// off-curve search, so this derivation is a deterministic SHA-256 over the
// same seed bytes a real find-program-address call would hash — it
// produces a stable 32-byte address for a given (programID, seeds) pair,
// which is all the Relayer and Claim Store need.
func DeriveDistributionAddress(programID [32]byte, distributionID [32]byte) [32]byte {
	return deriveAddress(programID, []byte(distributionSeed), distributionID[:])
}

// DeriveVaultAddress derives the vault account address from
// ("vault", distribution_id).
func DeriveVaultAddress(programID [32]byte, distributionID [32]byte) [32]byte {
	return deriveAddress(programID, []byte(vaultSeed), distributionID[:])
}

// DeriveUniquenessMarkerAddress derives the per-claim uniqueness-marker
// address from ("claim", distribution_pubkey, index_le_u64). Its existence
// on-chain is the irreversible signal that a claim has already been paid.
func DeriveUniquenessMarkerAddress(programID [32]byte, distributionPubkey [32]byte, index uint64) [32]byte {
	var indexLE [8]byte
	binary.LittleEndian.PutUint64(indexLE[:], index)
	return deriveAddress(programID, []byte(claimSeed), distributionPubkey[:], indexLE[:])
}

// DeriveRecipientTokenAccount derives the address of the account that
// holds a recipient's balance of the distributed token. Real SPL-style
// token accounts derive from (owner, mint, token program); this module has
// no fixed mint concept at the chainrpc layer, so the derivation folds in
// only the recipient and the verifier program, consistent with the other
// deterministic derivations in this file.
func DeriveRecipientTokenAccount(programID [32]byte, recipient [32]byte) [32]byte {
	return deriveAddress(programID, []byte("token_account"), recipient[:])
}

func deriveAddress(programID [32]byte, seeds ...[]byte) [32]byte {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(programID[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// wellKnownProgram derives a fixed, deterministic stand-in address for a
// system-level program that every claim transaction references. There is
// no real token or system program in this module's dependency graph, so
// these are stable placeholders rather than addresses of any live chain.
func wellKnownProgram(tag string) [32]byte {
	return sha256.Sum256([]byte(tag))
}

// TokenProgramID and SystemProgramID are the fixed account references
// every claim instruction's account list includes (spec.md §6).
var (
	TokenProgramID  = wellKnownProgram("certen-merkle-distributor/token-program")
	SystemProgramID = wellKnownProgram("certen-merkle-distributor/system-program")
)
