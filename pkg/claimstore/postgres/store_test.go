// Copyright 2025 Certen Protocol
//
// Unit tests for the postgres claim store.
// Requires a live database; skipped unless CERTEN_TEST_DB is set.

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/merkle-distributor/pkg/artifact"
	"github.com/certen/merkle-distributor/pkg/claimstore"
	"github.com/certen/merkle-distributor/pkg/leaf"
)

var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("CERTEN_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testClient = &Client{db: db}

	if err := testClient.MigrateUp(context.Background()); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testClient == nil {
		t.Skip("test database not configured")
	}
	return New(testClient)
}

func testArtifact(t *testing.T, distinguisher byte) *artifact.Artifact {
	t.Helper()
	entries := []artifact.PayoutEntry{
		{Recipient: recipientFor(distinguisher, 1), Amount: 100, Index: 0},
		{Recipient: recipientFor(distinguisher, 2), Amount: 200, Index: 1},
		{Recipient: recipientFor(distinguisher, 3), Amount: 300, Index: 2},
	}
	a, err := artifact.Build(leaf.Identity{RewardID: "r", WindowID: "w", Mint: "m"}, entries, []byte{distinguisher})
	if err != nil {
		t.Fatalf("build artifact: %v", err)
	}
	return a
}

func recipientFor(distinguisher, b byte) [32]byte {
	var r [32]byte
	r[0] = distinguisher
	r[1] = b
	return r
}

func cleanupDistribution(t *testing.T, distributionID string) {
	t.Helper()
	ctx := context.Background()
	testClient.DB().ExecContext(ctx, "DELETE FROM claims WHERE distribution_id = $1", distributionID)
	testClient.DB().ExecContext(ctx, "DELETE FROM distributions WHERE distribution_id = $1", distributionID)
}

func TestSeedFromArtifactIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 1)
	defer cleanupDistribution(t, a.DistributionID)

	if err := s.SeedFromArtifact(ctx, a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.SeedFromArtifact(ctx, a); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	claims, err := s.NextPending(ctx, a.DistributionID, 5, 0)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 pending claims, got %d", len(claims))
	}
	for i, c := range claims {
		if c.Index != uint64(i) {
			t.Fatalf("expected ascending index order, got %d at position %d", c.Index, i)
		}
	}
}

func TestMarkSubmittedThenConfirmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 2)
	defer cleanupDistribution(t, a.DistributionID)

	if err := s.SeedFromArtifact(ctx, a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.MarkSubmitted(ctx, a.DistributionID, 0); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := s.MarkConfirmed(ctx, a.DistributionID, 0, "sig-abc"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	count, err := s.CountUnconfirmed(ctx, a.DistributionID)
	if err != nil {
		t.Fatalf("count unconfirmed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unconfirmed, got %d", count)
	}
}

func TestMarkConfirmedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 3)
	defer cleanupDistribution(t, a.DistributionID)

	s.SeedFromArtifact(ctx, a)
	s.MarkSubmitted(ctx, a.DistributionID, 0)
	if err := s.MarkConfirmed(ctx, a.DistributionID, 0, "sig-1"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if err := s.MarkConfirmed(ctx, a.DistributionID, 0, "sig-2"); err != nil {
		t.Fatalf("second confirm should be a no-op, got error: %v", err)
	}
}

func TestAlreadyClaimedReconciliationConfirmsDirectlyFromPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 4)
	defer cleanupDistribution(t, a.DistributionID)

	s.SeedFromArtifact(ctx, a)
	if err := s.MarkConfirmed(ctx, a.DistributionID, 1, "preexisting-marker"); err != nil {
		t.Fatalf("direct pending->confirmed: %v", err)
	}
	count, _ := s.CountUnconfirmed(ctx, a.DistributionID)
	if count != 2 {
		t.Fatalf("expected count to drop by one, got %d", count)
	}
}

func TestAlreadyClaimedReconciliationConfirmsDirectlyFromFailed(t *testing.T) {
	// A claim that exhausted a prior attempt and landed in failed must
	// still be confirmable once ledger reconciliation finds the
	// uniqueness marker already on-chain (spec.md §3, §8 convergence).
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 7)
	defer cleanupDistribution(t, a.DistributionID)

	s.SeedFromArtifact(ctx, a)
	s.MarkSubmitted(ctx, a.DistributionID, 0)
	if err := s.MarkFailed(ctx, a.DistributionID, 0, "transient"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := s.MarkConfirmed(ctx, a.DistributionID, 0, "preexisting-marker"); err != nil {
		t.Fatalf("failed->confirmed: %v", err)
	}
	count, _ := s.CountUnconfirmed(ctx, a.DistributionID)
	if count != 2 {
		t.Fatalf("expected count to drop by one, got %d", count)
	}
}

func TestConfirmedClaimRejectsFurtherTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 5)
	defer cleanupDistribution(t, a.DistributionID)

	s.SeedFromArtifact(ctx, a)
	s.MarkSubmitted(ctx, a.DistributionID, 0)
	s.MarkConfirmed(ctx, a.DistributionID, 0, "sig")

	if err := s.MarkFailed(ctx, a.DistributionID, 0, "should not be allowed"); err == nil {
		t.Fatal("expected error transitioning out of confirmed")
	}
}

func TestDistributionClosesWhenAllConfirmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testArtifact(t, 6)
	defer cleanupDistribution(t, a.DistributionID)

	s.SeedFromArtifact(ctx, a)
	for i := uint64(0); i < 3; i++ {
		s.MarkSubmitted(ctx, a.DistributionID, i)
		s.MarkConfirmed(ctx, a.DistributionID, i, "sig")
	}

	count, err := s.CountUnconfirmed(ctx, a.DistributionID)
	if err != nil {
		t.Fatalf("count unconfirmed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unconfirmed, got %d", count)
	}

	if err := s.SetDistributionStatus(ctx, a.DistributionID, claimstore.DistributionCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}
	dr, err := s.GetDistribution(ctx, a.DistributionID)
	if err != nil {
		t.Fatalf("get distribution: %v", err)
	}
	if dr.Status != claimstore.DistributionCompleted {
		t.Fatalf("expected completed, got %s", dr.Status)
	}
}

func TestUnknownDistributionReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.GetDistribution(ctx, "does-not-exist"); err != claimstore.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
