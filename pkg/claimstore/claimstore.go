// Copyright 2025 Certen Protocol
//
// Claim Store — narrow, transactional interface over durable per-claim
// state (spec.md §4.5). Two backends satisfy this interface: pkg/claimstore/postgres
// (durable, multi-instance) and pkg/claimstore/embedded (single-box,
// cometbft-db backed).

package claimstore

import (
	"context"
	"errors"
	"time"

	"github.com/certen/merkle-distributor/pkg/artifact"
)

// ClaimState is one state in the per-claim lifecycle.
type ClaimState string

const (
	StatePending   ClaimState = "pending"
	StateSubmitted ClaimState = "submitted"
	StateConfirmed ClaimState = "confirmed"
	StateFailed    ClaimState = "failed"
)

// DistributionStatus is the coarse-grained envelope state of a distribution.
type DistributionStatus string

const (
	DistributionPending    DistributionStatus = "pending"
	DistributionFunded     DistributionStatus = "funded"
	DistributionActive     DistributionStatus = "active"
	DistributionCompleted  DistributionStatus = "completed"
	DistributionClawedBack DistributionStatus = "clawed_back"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a requested distribution or claim does
	// not exist in the store.
	ErrNotFound = errors.New("claimstore: not found")
	// ErrInvalidTransition is returned when a caller requests a state
	// transition forbidden by the lifecycle in spec.md §3 (e.g. out of a
	// confirmed claim).
	ErrInvalidTransition = errors.New("claimstore: invalid state transition")
)

// ClaimRecord is the persisted per-(distribution_id, index) claim state.
type ClaimRecord struct {
	DistributionID   string
	Index            uint64
	Recipient        string // hex-encoded 32-byte account identifier
	Amount           uint64
	State            ClaimState
	Attempts         uint32
	LastAttemptAt    *time.Time
	ConfirmedAt      *time.Time
	TxReference      *string
	LastErrorMessage *string
}

// DistributionRecord is the coarse-grained envelope state for one
// distribution.
type DistributionRecord struct {
	DistributionID  string
	MerkleRoot      string
	RecipientCount  uint64
	TotalAmount     uint64
	Status          DistributionStatus
	ConfirmedClaims uint64
	CreatedAt       time.Time
}

// Store is the operation set the Relayer depends on. Every mutating
// operation is atomic at single-record granularity; no cross-record
// transaction is required (spec.md §5 Shared-resource policy).
type Store interface {
	// SeedFromArtifact inserts one ClaimRecord in state pending for each
	// proof in the artifact and a DistributionRecord in state active.
	// Idempotent against (distribution_id, index): re-seeding the same
	// artifact is a no-op for already-seeded records.
	SeedFromArtifact(ctx context.Context, a *artifact.Artifact) error

	// NextPending returns claims in state pending or failed with
	// attempts < maxAttempts, ordered ascending by index, up to limit
	// records. limit <= 0 means no limit.
	NextPending(ctx context.Context, distributionID string, maxAttempts uint32, limit int) ([]ClaimRecord, error)

	// MarkSubmitted transitions a claim to submitted and increments
	// attempts. Called before broadcast (spec.md §5 ordering guarantees).
	MarkSubmitted(ctx context.Context, distributionID string, index uint64) error

	// MarkConfirmed transitions a claim to confirmed (terminal) and
	// records the opaque transaction reference. Idempotent: confirming an
	// already-confirmed claim is a no-op, never an error.
	MarkConfirmed(ctx context.Context, distributionID string, index uint64, txReference string) error

	// MarkFailed transitions a claim from submitted back to failed,
	// incrementing attempts and recording the error message.
	MarkFailed(ctx context.Context, distributionID string, index uint64, errMessage string) error

	// CountUnconfirmed returns the number of claims for distributionID not
	// yet in state confirmed.
	CountUnconfirmed(ctx context.Context, distributionID string) (int, error)

	// GetDistribution returns the coarse-grained envelope record.
	GetDistribution(ctx context.Context, distributionID string) (*DistributionRecord, error)

	// SetDistributionStatus transitions a DistributionRecord's coarse
	// status. active -> completed is idempotent (spec.md §5).
	SetDistributionStatus(ctx context.Context, distributionID string, status DistributionStatus) error

	// Close releases any resources held by the store (connections,
	// open file handles).
	Close() error
}

// CanTransition reports whether moving a claim from `from` to `to` is
// permitted by the lifecycle invariants in spec.md §3. It is exported so
// both backends can share one rulebook instead of re-deriving it.
func CanTransition(from, to ClaimState) bool {
	switch from {
	case StatePending:
		// pending -> confirmed happens directly during ledger reconciliation
		// when the uniqueness marker is already on-chain (spec.md §4.6 step a,
		// scenario 3): the relayer never submits a transaction for that claim.
		return to == StateSubmitted || to == StateConfirmed
	case StateSubmitted:
		return to == StateConfirmed || to == StateFailed
	case StateFailed:
		// failed -> confirmed happens when ledger reconciliation discovers
		// the uniqueness marker already on-chain for a claim that exhausted
		// a prior attempt (spec.md §3, §8 convergence property): ledger
		// truth is authoritative regardless of the claim's last known state.
		return to == StateSubmitted || to == StateConfirmed
	case StateConfirmed:
		return false // terminal: confirmed -> * is forbidden
	default:
		return false
	}
}
