// Copyright 2025 Certen Protocol
//
// Relayer — drives claims to confirmed under an adversarial network
// (spec.md §4.6). Adapted from this repository's batch collector and
// confirmation tracker: a config-driven worker with a functional-option
// constructor, a bounded main loop, and an injected logger, generalized
// from anchoring Accumulate transactions to submitting Merkle-distribution
// claim transactions against the Verifier Contract.

package relayer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/merkle-distributor/pkg/artifact"
	"github.com/certen/merkle-distributor/pkg/chainrpc"
	"github.com/certen/merkle-distributor/pkg/claimstore"
)

// Relayer drives one distribution's claims from pending to confirmed.
type Relayer struct {
	store   claimstore.Store
	backend chainrpc.Backend
	cfg     Config
	metrics *metrics
	logger  *log.Logger
}

// Option configures a Relayer at construction time.
type Option func(*Relayer)

// WithMetricsRegisterer registers the Relayer's prometheus collectors with
// reg instead of leaving them unregistered (useful in tests, where a
// fresh registry avoids collisions across parallel test cases).
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(r *Relayer) { r.metrics = newMetrics(reg) }
}

// New constructs a Relayer bound to store and backend.
func New(store claimstore.Store, backend chainrpc.Backend, cfg Config, opts ...Option) (*Relayer, error) {
	if store == nil {
		return nil, fmt.Errorf("relayer: store cannot be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("relayer: backend cannot be nil")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Relayer{
		store:   store,
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = newMetrics(nil)
	}
	return r, nil
}

// Run drives a's distribution through the main loop (spec.md §4.6) until
// it closes (count_unconfirmed reaches zero) or ctx is cancelled between
// passes. A submission already in flight is allowed to complete or fail on
// its own timeout (spec.md §5 Cancellation and timeouts).
func (r *Relayer) Run(ctx context.Context, a *artifact.Artifact) error {
	if err := r.store.SeedFromArtifact(ctx, a); err != nil {
		return fmt.Errorf("relayer: seed from artifact: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		closed, err := r.runPass(ctx, a)
		if err != nil {
			r.logger.Printf("distribution %s: pass error: %v", a.DistributionID, err)
		}
		if closed {
			r.logger.Printf("distribution %s: closed", a.DistributionID)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.InterBatchPacing):
		}
	}
}

// runPass performs one main-loop pass: fetch pending claims, process them
// in batches, and check for distribution closure.
func (r *Relayer) runPass(ctx context.Context, a *artifact.Artifact) (closed bool, err error) {
	pending, err := r.store.NextPending(ctx, a.DistributionID, r.cfg.MaxAttempts, 0)
	if err != nil {
		return false, fmt.Errorf("next pending: %w", err)
	}
	r.metrics.pendingGauge.Set(float64(len(pending)))

	for _, batch := range splitBatches(pending, r.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		batchCorrelationID := uuid.New()
		start := time.Now()
		if err := r.processBatch(ctx, a, batch); err != nil {
			// A batch-wide catastrophic error is logged; claims already
			// marked submitted are left for the next pass's reconciliation
			// to correct from ledger truth (spec.md §4.6 Failure semantics).
			r.logger.Printf("distribution %s: batch %s error: %v", a.DistributionID, batchCorrelationID, err)
		}
		r.metrics.batchDuration.Observe(time.Since(start).Seconds())

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(r.cfg.InterBatchPacing):
		}
	}

	return r.maybeCloseDistribution(ctx, a.DistributionID)
}

func (r *Relayer) maybeCloseDistribution(ctx context.Context, distributionID string) (bool, error) {
	unconfirmed, err := r.store.CountUnconfirmed(ctx, distributionID)
	if err != nil {
		return false, fmt.Errorf("count unconfirmed: %w", err)
	}
	if unconfirmed > 0 {
		return false, nil
	}
	if err := r.store.SetDistributionStatus(ctx, distributionID, claimstore.DistributionCompleted); err != nil {
		return false, fmt.Errorf("close distribution: %w", err)
	}
	return true, nil
}

// processBatch runs the per-batch steps of spec.md §4.6 (a) through (f).
func (r *Relayer) processBatch(ctx context.Context, a *artifact.Artifact, batch []claimstore.ClaimRecord) error {
	distributionID, err := decodeHex32(a.DistributionID)
	if err != nil {
		return fmt.Errorf("distribution_id: %w", err)
	}
	distributionAddr := chainrpc.DeriveDistributionAddress(r.cfg.ProgramID, distributionID)
	vaultAddr := chainrpc.DeriveVaultAddress(r.cfg.ProgramID, distributionID)
	payerAddr := DerivePayerAddress(r.cfg.PayerKey)

	// (a) Ledger reconciliation.
	remaining := make([]claimstore.ClaimRecord, 0, len(batch))
	for _, claim := range batch {
		marker := chainrpc.DeriveUniquenessMarkerAddress(r.cfg.ProgramID, distributionAddr, claim.Index)
		exists, err := r.backend.AccountExists(ctx, marker)
		if err != nil {
			return fmt.Errorf("checking uniqueness marker for index %d: %w", claim.Index, err)
		}
		if exists.Exists {
			if err := r.store.MarkConfirmed(ctx, a.DistributionID, claim.Index, "reconciled-from-ledger"); err != nil {
				return fmt.Errorf("marking index %d confirmed by reconciliation: %w", claim.Index, err)
			}
			r.metrics.claimsReconciled.Inc()
			continue
		}
		remaining = append(remaining, claim)
	}
	if len(remaining) == 0 {
		return nil
	}

	// (b) Account preparation, (c) instruction assembly.
	items := make([]chainrpc.ClaimBatchItem, 0, len(remaining))
	for _, claim := range remaining {
		recipient, err := decodeHex32(claim.Recipient)
		if err != nil {
			return fmt.Errorf("recipient for index %d: %w", claim.Index, err)
		}
		recipientTokenAccount := chainrpc.DeriveRecipientTokenAccount(r.cfg.ProgramID, recipient)
		tokenAccountExists, err := r.backend.AccountExists(ctx, recipientTokenAccount)
		if err != nil {
			return fmt.Errorf("checking recipient token account for index %d: %w", claim.Index, err)
		}

		proof, err := proofForIndex(a, claim.Index)
		if err != nil {
			return err
		}

		accounts := chainrpc.ClaimAccounts{
			Distribution:          distributionAddr,
			UniquenessMarker:      chainrpc.DeriveUniquenessMarkerAddress(r.cfg.ProgramID, distributionAddr, claim.Index),
			Vault:                 vaultAddr,
			Recipient:             recipient,
			RecipientTokenAccount: recipientTokenAccount,
			Payer:                 payerAddr,
			TokenProgram:          chainrpc.TokenProgramID,
			SystemProgram:         chainrpc.SystemProgramID,
		}
		items = append(items, chainrpc.ClaimBatchItem{
			Accounts:               accounts,
			Data:                   chainrpc.ClaimInstructionData{Index: claim.Index, Amount: claim.Amount, Proof: proof},
			CreateRecipientAccount: !tokenAccountExists.Exists,
		})
	}

	// (d) Optimistic state update, before broadcast.
	for _, claim := range remaining {
		if err := r.store.MarkSubmitted(ctx, a.DistributionID, claim.Index); err != nil {
			return fmt.Errorf("marking index %d submitted: %w", claim.Index, err)
		}
		r.metrics.claimsSubmitted.Inc()
	}

	opts := chainrpc.SubmitOptions{
		Payer:                         payerAddr,
		CommitmentLevel:               r.cfg.CommitmentLevel,
		ComputeUnitLimit:              r.cfg.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: r.cfg.ComputeUnitPriceMicroLamports,
		ConfirmationTimeout:           r.cfg.ConfirmationTimeout,
		ConfirmationPoll:              r.cfg.ConfirmationPoll,
	}
	opts.PayerSignature = SignBatch(r.cfg.PayerKey, batchMessage(items))

	// (e) Submission, with transaction-level retries.
	result, submitErr := r.submitWithRetries(ctx, items, opts)
	r.metrics.computeCost.Add(float64(uint64(r.cfg.ComputeUnitLimit) * r.cfg.ComputeUnitPriceMicroLamports))

	// (f) Settlement.
	if submitErr != nil {
		if errors.Is(submitErr, chainrpc.ErrAlreadyClaimed) {
			for _, claim := range remaining {
				if err := r.store.MarkConfirmed(ctx, a.DistributionID, claim.Index, "already-claimed"); err != nil {
					return fmt.Errorf("marking index %d confirmed after already-claimed: %w", claim.Index, err)
				}
				r.metrics.claimsReconciled.Inc()
			}
			return nil
		}
		for _, claim := range remaining {
			if err := r.store.MarkFailed(ctx, a.DistributionID, claim.Index, submitErr.Error()); err != nil {
				return fmt.Errorf("marking index %d failed: %w", claim.Index, err)
			}
			r.metrics.claimsFailed.Inc()
		}
		return fmt.Errorf("batch submission: %w", submitErr)
	}

	for _, claim := range remaining {
		if err := r.store.MarkConfirmed(ctx, a.DistributionID, claim.Index, result.TxReference); err != nil {
			return fmt.Errorf("marking index %d confirmed: %w", claim.Index, err)
		}
		r.metrics.claimsConfirmed.Inc()
	}
	return nil
}

// submitWithRetries submits items up to cfg.MaxAttempts times, waiting
// cfg.RetryDelay between attempts (spec.md §4.6 step e). Errors the
// Verifier Contract treats as terminal for this batch's shape (proof or
// funds) are not worth retrying and return immediately.
func (r *Relayer) submitWithRetries(ctx context.Context, items []chainrpc.ClaimBatchItem, opts chainrpc.SubmitOptions) (chainrpc.SubmitResult, error) {
	var lastErr error
	for attempt := uint32(0); attempt < r.cfg.MaxAttempts; attempt++ {
		result, err := r.backend.SubmitBatch(ctx, items, opts)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, chainrpc.ErrAlreadyClaimed) || errors.Is(err, chainrpc.ErrProofInvalid) || errors.Is(err, chainrpc.ErrInsufficientFunds) {
			return chainrpc.SubmitResult{}, err
		}

		select {
		case <-ctx.Done():
			return chainrpc.SubmitResult{}, ctx.Err()
		case <-time.After(r.cfg.RetryDelay):
		}
	}
	return chainrpc.SubmitResult{}, lastErr
}

func splitBatches(claims []claimstore.ClaimRecord, size int) [][]claimstore.ClaimRecord {
	if len(claims) == 0 {
		return nil
	}
	batches := make([][]claimstore.ClaimRecord, 0, (len(claims)+size-1)/size)
	for i := 0; i < len(claims); i += size {
		end := i + size
		if end > len(claims) {
			end = len(claims)
		}
		batches = append(batches, claims[i:end])
	}
	return batches
}

func proofForIndex(a *artifact.Artifact, index uint64) ([][32]byte, error) {
	if index >= uint64(len(a.Proofs)) {
		return nil, fmt.Errorf("relayer: index %d out of range for artifact with %d proofs", index, len(a.Proofs))
	}
	entry := a.Proofs[index]
	if entry.Index != index {
		return nil, fmt.Errorf("relayer: artifact proof at position %d has index %d, expected %d", index, entry.Index, index)
	}
	nodes := make([][32]byte, len(entry.ProofNodes))
	for i, s := range entry.ProofNodes {
		n, err := decodeHex32(s)
		if err != nil {
			return nil, fmt.Errorf("relayer: proof node %d for index %d: %w", i, index, err)
		}
		nodes[i] = n
	}
	return nodes, nil
}

func decodeHex32(s string) ([32]byte, error) {
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

// batchMessage derives the bytes the payer signs to authorize a batch: the
// encoded claim instruction and account list for every item, in order.
func batchMessage(items []chainrpc.ClaimBatchItem) []byte {
	var buf []byte
	for _, item := range items {
		buf = append(buf, chainrpc.EncodeClaimInstruction(item.Data)...)
		for _, acct := range item.Accounts.Accounts() {
			buf = append(buf, acct.Address[:]...)
		}
	}
	return buf
}
