// Copyright 2025 Certen Protocol
//
// Artifact Assembler — turns a validated payout list into a persisted
// DistributionArtifact, and validates artifacts read back from storage
// (spec.md §4.4).

package artifact

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/certen/merkle-distributor/pkg/commitment"
	"github.com/certen/merkle-distributor/pkg/leaf"
	"github.com/certen/merkle-distributor/pkg/merkle"
)

// FormatVersion is bumped on any breaking change to the persisted wire
// format (§6).
const FormatVersion = "distribution-artifact/v1"

// Sentinel errors per the taxonomy in spec.md §4.4/§7.
var (
	ErrInvalidInput    = errors.New("artifact: invalid input")
	ErrOverflow        = errors.New("artifact: amount sum overflows u64")
	ErrArtifactInvalid = errors.New("artifact: invariant violated")
)

// PayoutEntry is one recipient's payout prior to artifact assembly. Mint
// is optional bookkeeping from the ingestion pipeline used only to reject
// a list that mixes more than one mint; the Leaf Codec itself never sees
// it (the distribution-wide mint is part of Identity, not the per-entry
// payload).
type PayoutEntry struct {
	Recipient [32]byte
	Amount    uint64
	Index     uint64
	Mint      string
}

// ProofEntry is the persisted, wire-encoded form of one recipient's claim
// data: 32-byte values are hex, amounts are base-10 strings (§6), so a
// uint64 amount survives round-tripping through any text-based transport.
type ProofEntry struct {
	Index      uint64   `json:"index"`
	Recipient  string   `json:"recipient"`
	Amount     string   `json:"amount"`
	ProofNodes []string `json:"proof_nodes"`
}

// Artifact is the serializable DistributionArtifact of spec.md §3.
type Artifact struct {
	FormatVersion     string       `json:"format_version"`
	CreatedAt         time.Time    `json:"created_at"`
	DistributionID    string       `json:"distribution_id"`
	MerkleRoot        string       `json:"merkle_root"`
	RecipientCount    uint64       `json:"recipient_count"`
	TotalAmount       string       `json:"total_amount"`
	SourceFingerprint string       `json:"source_fingerprint"`
	Proofs            []ProofEntry `json:"proofs"`
}

// Build derives the distribution id, encodes every leaf, builds the
// Merkle tree, and assembles a complete Artifact. entries need not be
// pre-sorted; Build sorts and checks index density itself.
//
// sourceInput is the canonical, line-exact payload as received from the
// ingestion pipeline; it is hashed verbatim into SourceFingerprint for
// operator audit (§4.4 step 6) and is otherwise opaque to this function.
func Build(id leaf.Identity, entries []PayoutEntry, sourceInput []byte) (*Artifact, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty payout list", ErrInvalidInput)
	}

	sorted := make([]PayoutEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	seen := make(map[uint64]bool, len(sorted))
	mint := ""
	var total uint64
	for i, e := range sorted {
		if uint64(i) != e.Index {
			return nil, fmt.Errorf("%w: indices are not a dense 0-based permutation (expected %d, got %d)", ErrInvalidInput, i, e.Index)
		}
		if seen[e.Index] {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrInvalidInput, e.Index)
		}
		seen[e.Index] = true

		if e.Amount == 0 {
			return nil, fmt.Errorf("%w: zero amount at index %d", ErrInvalidInput, e.Index)
		}

		if e.Mint != "" {
			if mint == "" {
				mint = e.Mint
			} else if mint != e.Mint {
				return nil, fmt.Errorf("%w: mixed mint in payout list (%q and %q)", ErrInvalidInput, mint, e.Mint)
			}
		}

		next := total + e.Amount
		if next < total { // unsigned wraparound
			return nil, fmt.Errorf("%w: sum of amounts exceeds 2^64-1 at index %d", ErrOverflow, e.Index)
		}
		total = next
	}

	distID := leaf.DistributionID(leaf.Identity{
		RewardID:    id.RewardID,
		WindowID:    id.WindowID,
		Mint:        id.Mint,
		TotalAmount: total,
	})

	leaves := make([]merkle.Hash, len(sorted))
	for i, e := range sorted {
		leaves[i] = merkle.Hash(leaf.Encode(distID, e.Recipient, e.Amount))
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, fmt.Errorf("building merkle tree: %w", err)
	}

	proofs := make([]ProofEntry, len(sorted))
	for i, e := range sorted {
		nodes, err := tree.Proof(i)
		if err != nil {
			return nil, fmt.Errorf("generating proof for index %d: %w", i, err)
		}
		proofs[i] = ProofEntry{
			Index:      e.Index,
			Recipient:  hex.EncodeToString(e.Recipient[:]),
			Amount:     fmt.Sprintf("%d", e.Amount),
			ProofNodes: encodeHashes(nodes),
		}
	}

	fingerprint := commitment.HashConcat(sourceInput)
	root := tree.Root()

	return &Artifact{
		FormatVersion:     FormatVersion,
		CreatedAt:         time.Now().UTC(),
		DistributionID:    hex.EncodeToString(distID[:]),
		MerkleRoot:        hex.EncodeToString(root[:]),
		RecipientCount:    uint64(len(sorted)),
		TotalAmount:       fmt.Sprintf("%d", total),
		SourceFingerprint: hex.EncodeToString(fingerprint),
		Proofs:            proofs,
	}, nil
}

func encodeHashes(hs []merkle.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = hex.EncodeToString(h[:])
	}
	return out
}

// ToJSON serializes the artifact for persistence.
func (a *Artifact) ToJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// FromJSON deserializes a previously persisted artifact. Callers should
// call Validate before trusting the result.
func FromJSON(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
	}
	return &a, nil
}

// ValidateOptions controls how deep Validate checks proofs. Verifying
// every proof is the right default for tests; operators validating a
// large artifact on a hot path may leave VerifyAllProofs false to bound the
// cost.
type ValidateOptions struct {
	// VerifyAllProofs checks every proof against MerkleRoot (recommended
	// for test contexts, per §4.4). When false, only one sampled proof is
	// checked (recommended for operator contexts on very large artifacts).
	VerifyAllProofs bool
}

// Validate checks every invariant in spec.md §3/§4.4 for an artifact read
// back from storage, returning ErrArtifactInvalid wrapping the first
// violation found.
func Validate(a *Artifact, opts ValidateOptions) error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrArtifactInvalid)
	}
	if a.FormatVersion == "" || a.DistributionID == "" || a.MerkleRoot == "" {
		return fmt.Errorf("%w: missing structural fields", ErrArtifactInvalid)
	}

	distID, err := decodeHash(a.DistributionID)
	if err != nil {
		return fmt.Errorf("%w: distribution_id: %v", ErrArtifactInvalid, err)
	}
	root, err := decodeHash(a.MerkleRoot)
	if err != nil {
		return fmt.Errorf("%w: merkle_root: %v", ErrArtifactInvalid, err)
	}

	if uint64(len(a.Proofs)) != a.RecipientCount {
		return fmt.Errorf("%w: proofs.length (%d) != recipient_count (%d)", ErrArtifactInvalid, len(a.Proofs), a.RecipientCount)
	}

	seen := make(map[uint64]bool, len(a.Proofs))
	var sum uint64
	for _, p := range a.Proofs {
		if p.Index >= a.RecipientCount {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrArtifactInvalid, p.Index, a.RecipientCount)
		}
		if seen[p.Index] {
			return fmt.Errorf("%w: duplicate index %d", ErrArtifactInvalid, p.Index)
		}
		seen[p.Index] = true

		amount, err := parseUint64(p.Amount)
		if err != nil {
			return fmt.Errorf("%w: amount for index %d: %v", ErrArtifactInvalid, p.Index, err)
		}
		next := sum + amount
		if next < sum {
			return fmt.Errorf("%w: proof amounts overflow u64", ErrArtifactInvalid)
		}
		sum = next
	}
	if len(seen) != int(a.RecipientCount) {
		return fmt.Errorf("%w: indices are not a dense permutation of [0,%d)", ErrArtifactInvalid, a.RecipientCount)
	}

	total, err := parseUint64(a.TotalAmount)
	if err != nil {
		return fmt.Errorf("%w: total_amount: %v", ErrArtifactInvalid, err)
	}
	if sum != total {
		return fmt.Errorf("%w: sum(proofs.amount)=%d != total_amount=%d", ErrArtifactInvalid, sum, total)
	}

	toVerify := a.Proofs
	if !opts.VerifyAllProofs && len(toVerify) > 1 {
		// Sample a single, deterministic entry (the lowest index) so an
		// operator-context call is cheap but still catches gross corruption.
		sorted := make([]ProofEntry, len(toVerify))
		copy(sorted, toVerify)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
		toVerify = sorted[:1]
	}

	for _, p := range toVerify {
		var recipient [32]byte
		rb, err := hex.DecodeString(p.Recipient)
		if err != nil || len(rb) != 32 {
			return fmt.Errorf("%w: recipient for index %d is not 32 bytes of hex", ErrArtifactInvalid, p.Index)
		}
		copy(recipient[:], rb)

		amount, err := parseUint64(p.Amount)
		if err != nil {
			return fmt.Errorf("%w: amount for index %d: %v", ErrArtifactInvalid, p.Index, err)
		}

		nodes, err := decodeHashes(p.ProofNodes)
		if err != nil {
			return fmt.Errorf("%w: proof_nodes for index %d: %v", ErrArtifactInvalid, p.Index, err)
		}

		want := merkle.Hash(leaf.Encode(leaf.Digest(distID), recipient, amount))
		if !merkle.Verify(want, nodes, merkle.Hash(root)) {
			return fmt.Errorf("%w: proof for index %d does not reproduce merkle_root", ErrArtifactInvalid, p.Index)
		}
	}

	return nil
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeHashes(ss []string) ([]merkle.Hash, error) {
	out := make([]merkle.Hash, len(ss))
	for i, s := range ss {
		h, err := decodeHash(s)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = merkle.Hash(h)
	}
	return out, nil
}

func parseUint64(s string) (uint64, error) {
	var v uint64
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a base-10 integer: %q", s)
		}
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, fmt.Errorf("overflow parsing %q", s)
		}
		v = v*10 + d
	}
	return v, nil
}
