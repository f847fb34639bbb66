// Copyright 2025 Certen Protocol
//
// Embedded Claim Store — a cometbft-db backed implementation of
// claimstore.Store for single-box and test/dev deployments. Grounded in
// pkg/kvdb's adapter and the key-prefix + JSON-blob layout pattern used
// throughout this repository's ledger storage.

package embedded

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/merkle-distributor/pkg/artifact"
	"github.com/certen/merkle-distributor/pkg/claimstore"
	"github.com/certen/merkle-distributor/pkg/kvdb"
)

// ====== KV Key Layout ======
//
//   dist:<distribution_id>                      -> distributionRecord (JSON)
//   claim:<distribution_id>:<index_be_u64>       -> claimRecord (JSON)
//
// Big-endian index encoding keeps claim keys in ascending index order
// under plain byte comparison, so NextPending's range scan is naturally
// sorted without an extra in-memory sort.

var (
	distPrefix  = []byte("dist:")
	claimPrefix = []byte("claim:")
)

func distKey(distributionID string) []byte {
	return append(append([]byte{}, distPrefix...), []byte(distributionID)...)
}

func claimKeyPrefix(distributionID string) []byte {
	return append(append(append([]byte{}, claimPrefix...), []byte(distributionID)...), ':')
}

func claimKey(distributionID string, index uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, index)
	return append(claimKeyPrefix(distributionID), b...)
}

// claimKeyUpperBound is the exclusive end of the range containing every
// claim key for distributionID (prefix scan via lexicographic successor).
func claimKeyUpperBound(distributionID string) []byte {
	prefix := claimKeyPrefix(distributionID)
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix was all 0xff; unbounded scan is fine here
}

// Store implements claimstore.Store over an embedded KV database.
//
// CONCURRENCY: Store guards every operation with a single mutex. This
// trades away intra-store parallelism for simplicity; the relayer issues
// one batch at a time per distribution (spec.md §5) so contention is low.
type Store struct {
	mu     sync.Mutex
	kv     *kvdb.KVAdapter
	db     dbm.DB
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open creates or opens an embedded claim store backed by GoLevelDB at
// dataDir.
func Open(dataDir string, opts ...Option) (*Store, error) {
	db, err := dbm.NewGoLevelDB("claimstore", dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening embedded claim store at %s: %w", dataDir, err)
	}
	return newStore(db, opts...), nil
}

// New wraps an already-open dbm.DB (e.g. dbm.NewMemDB() in tests).
func New(db dbm.DB, opts ...Option) *Store {
	return newStore(db, opts...)
}

func newStore(db dbm.DB, opts ...Option) *Store {
	s := &Store{
		kv:     kvdb.NewKVAdapter(db),
		db:     db,
		logger: log.New(log.Writer(), "[ClaimStore:embedded] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type claimRecord struct {
	DistributionID   string  `json:"distribution_id"`
	Index            uint64  `json:"index"`
	Recipient        string  `json:"recipient"`
	Amount           uint64  `json:"amount"`
	State            string  `json:"state"`
	Attempts         uint32  `json:"attempts"`
	LastAttemptAtUTC string  `json:"last_attempt_at,omitempty"`
	ConfirmedAtUTC   string  `json:"confirmed_at,omitempty"`
	TxReference      *string `json:"tx_reference,omitempty"`
	LastErrorMessage *string `json:"last_error_message,omitempty"`
}

type distributionRecord struct {
	DistributionID  string `json:"distribution_id"`
	MerkleRoot      string `json:"merkle_root"`
	RecipientCount  uint64 `json:"recipient_count"`
	TotalAmount     uint64 `json:"total_amount"`
	Status          string `json:"status"`
	ConfirmedClaims uint64 `json:"confirmed_claims"`
	CreatedAtUTC    string `json:"created_at"`
}

// SeedFromArtifact implements claimstore.Store.
func (s *Store) SeedFromArtifact(ctx context.Context, a *artifact.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getDistributionLocked(a.DistributionID); err == nil {
		// Distribution already seeded; still ensure every claim exists
		// (idempotent re-seed after a partial prior run).
	} else if err != claimstore.ErrNotFound {
		return err
	} else {
		total, parseErr := strconv.ParseUint(a.TotalAmount, 10, 64)
		if parseErr != nil {
			return fmt.Errorf("parsing total_amount: %w", parseErr)
		}
		dr := distributionRecord{
			DistributionID: a.DistributionID,
			MerkleRoot:     a.MerkleRoot,
			RecipientCount: a.RecipientCount,
			TotalAmount:    total,
			Status:         string(claimstore.DistributionActive),
			CreatedAtUTC:   nowUTC(),
		}
		if err := s.putDistributionLocked(&dr); err != nil {
			return err
		}
	}

	for _, p := range a.Proofs {
		key := claimKey(a.DistributionID, p.Index)
		existing, err := s.kv.Get(key)
		if err != nil {
			return fmt.Errorf("checking existing claim %d: %w", p.Index, err)
		}
		if existing != nil {
			continue // already seeded
		}

		amount, err := strconv.ParseUint(p.Amount, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing amount for index %d: %w", p.Index, err)
		}

		cr := claimRecord{
			DistributionID: a.DistributionID,
			Index:          p.Index,
			Recipient:      p.Recipient,
			Amount:         amount,
			State:          string(claimstore.StatePending),
			Attempts:       0,
		}
		if err := s.putClaimLocked(&cr); err != nil {
			return fmt.Errorf("seeding claim %d: %w", p.Index, err)
		}
	}

	return nil
}

// NextPending implements claimstore.Store.
func (s *Store) NextPending(ctx context.Context, distributionID string, maxAttempts uint32, limit int) ([]claimstore.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []claimstore.ClaimRecord
	err := s.kv.Iterate(claimKeyPrefix(distributionID), claimKeyUpperBound(distributionID), func(key, value []byte) bool {
		var cr claimRecord
		if jsonErr := json.Unmarshal(value, &cr); jsonErr != nil {
			return true // skip corrupt record rather than abort the whole scan
		}
		if (cr.State == string(claimstore.StatePending) || cr.State == string(claimstore.StateFailed)) && cr.Attempts < maxAttempts {
			out = append(out, toPublicClaim(cr))
		}
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("scanning pending claims: %w", err)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSubmitted implements claimstore.Store.
func (s *Store) MarkSubmitted(ctx context.Context, distributionID string, index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cr, err := s.getClaimLocked(distributionID, index)
	if err != nil {
		return err
	}
	from := claimstore.ClaimState(cr.State)
	if !claimstore.CanTransition(from, claimstore.StateSubmitted) {
		return fmt.Errorf("%w: %s -> submitted for index %d", claimstore.ErrInvalidTransition, cr.State, index)
	}
	cr.State = string(claimstore.StateSubmitted)
	cr.Attempts++
	cr.LastAttemptAtUTC = nowUTC()
	return s.putClaimLocked(cr)
}

// MarkConfirmed implements claimstore.Store.
func (s *Store) MarkConfirmed(ctx context.Context, distributionID string, index uint64, txReference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cr, err := s.getClaimLocked(distributionID, index)
	if err != nil {
		return err
	}
	if cr.State == string(claimstore.StateConfirmed) {
		return nil // idempotent
	}
	from := claimstore.ClaimState(cr.State)
	if !claimstore.CanTransition(from, claimstore.StateConfirmed) {
		return fmt.Errorf("%w: %s -> confirmed for index %d", claimstore.ErrInvalidTransition, cr.State, index)
	}
	cr.State = string(claimstore.StateConfirmed)
	cr.ConfirmedAtUTC = nowUTC()
	ref := txReference
	cr.TxReference = &ref
	if err := s.putClaimLocked(cr); err != nil {
		return err
	}

	dr, err := s.getDistributionLocked(distributionID)
	if err != nil {
		return err
	}
	dr.ConfirmedClaims++
	return s.putDistributionLocked(dr)
}

// MarkFailed implements claimstore.Store.
func (s *Store) MarkFailed(ctx context.Context, distributionID string, index uint64, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cr, err := s.getClaimLocked(distributionID, index)
	if err != nil {
		return err
	}
	from := claimstore.ClaimState(cr.State)
	if !claimstore.CanTransition(from, claimstore.StateFailed) {
		return fmt.Errorf("%w: %s -> failed for index %d", claimstore.ErrInvalidTransition, cr.State, index)
	}
	cr.State = string(claimstore.StateFailed)
	cr.Attempts++
	cr.LastAttemptAtUTC = nowUTC()
	msg := errMessage
	cr.LastErrorMessage = &msg
	return s.putClaimLocked(cr)
}

// CountUnconfirmed implements claimstore.Store.
func (s *Store) CountUnconfirmed(ctx context.Context, distributionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	err := s.kv.Iterate(claimKeyPrefix(distributionID), claimKeyUpperBound(distributionID), func(key, value []byte) bool {
		var cr claimRecord
		if jsonErr := json.Unmarshal(value, &cr); jsonErr == nil && cr.State != string(claimstore.StateConfirmed) {
			count++
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("counting unconfirmed claims: %w", err)
	}
	return count, nil
}

// GetDistribution implements claimstore.Store.
func (s *Store) GetDistribution(ctx context.Context, distributionID string) (*claimstore.DistributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dr, err := s.getDistributionLocked(distributionID)
	if err != nil {
		return nil, err
	}
	return toPublicDistribution(dr), nil
}

// SetDistributionStatus implements claimstore.Store.
func (s *Store) SetDistributionStatus(ctx context.Context, distributionID string, status claimstore.DistributionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dr, err := s.getDistributionLocked(distributionID)
	if err != nil {
		return err
	}
	dr.Status = string(status)
	return s.putDistributionLocked(dr)
}

func (s *Store) getClaimLocked(distributionID string, index uint64) (*claimRecord, error) {
	raw, err := s.kv.Get(claimKey(distributionID, index))
	if err != nil {
		return nil, fmt.Errorf("reading claim %d: %w", index, err)
	}
	if raw == nil {
		return nil, claimstore.ErrNotFound
	}
	var cr claimRecord
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decoding claim %d: %w", index, err)
	}
	return &cr, nil
}

func (s *Store) putClaimLocked(cr *claimRecord) error {
	b, err := json.Marshal(cr)
	if err != nil {
		return fmt.Errorf("encoding claim %d: %w", cr.Index, err)
	}
	return s.kv.Set(claimKey(cr.DistributionID, cr.Index), b)
}

func (s *Store) getDistributionLocked(distributionID string) (*distributionRecord, error) {
	raw, err := s.kv.Get(distKey(distributionID))
	if err != nil {
		return nil, fmt.Errorf("reading distribution %s: %w", distributionID, err)
	}
	if raw == nil {
		return nil, claimstore.ErrNotFound
	}
	var dr distributionRecord
	if err := json.Unmarshal(raw, &dr); err != nil {
		return nil, fmt.Errorf("decoding distribution %s: %w", distributionID, err)
	}
	return &dr, nil
}

func (s *Store) putDistributionLocked(dr *distributionRecord) error {
	b, err := json.Marshal(dr)
	if err != nil {
		return fmt.Errorf("encoding distribution %s: %w", dr.DistributionID, err)
	}
	return s.kv.Set(distKey(dr.DistributionID), b)
}

func toPublicClaim(cr claimRecord) claimstore.ClaimRecord {
	out := claimstore.ClaimRecord{
		DistributionID:   cr.DistributionID,
		Index:            cr.Index,
		Recipient:        cr.Recipient,
		Amount:           cr.Amount,
		State:            claimstore.ClaimState(cr.State),
		Attempts:         cr.Attempts,
		TxReference:      cr.TxReference,
		LastErrorMessage: cr.LastErrorMessage,
	}
	if t, err := parseUTC(cr.LastAttemptAtUTC); err == nil {
		out.LastAttemptAt = t
	}
	if t, err := parseUTC(cr.ConfirmedAtUTC); err == nil {
		out.ConfirmedAt = t
	}
	return out
}

func toPublicDistribution(dr *distributionRecord) *claimstore.DistributionRecord {
	out := &claimstore.DistributionRecord{
		DistributionID:  dr.DistributionID,
		MerkleRoot:      dr.MerkleRoot,
		RecipientCount:  dr.RecipientCount,
		TotalAmount:     dr.TotalAmount,
		Status:          claimstore.DistributionStatus(dr.Status),
		ConfirmedClaims: dr.ConfirmedClaims,
	}
	if t, err := parseUTC(dr.CreatedAtUTC); err == nil && t != nil {
		out.CreatedAt = *t
	}
	return out
}
