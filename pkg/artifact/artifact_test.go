// Copyright 2025 Certen Protocol

package artifact

import (
	"errors"
	"strings"
	"testing"

	"github.com/certen/merkle-distributor/pkg/leaf"
)

func sampleIdentity() leaf.Identity {
	return leaf.Identity{RewardID: "epoch-42", WindowID: "2026-07", Mint: "USDC"}
}

func recipientFor(b byte) [32]byte {
	var r [32]byte
	r[0] = b
	return r
}

func TestBuildThenValidateRoundTrips(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 100, Index: 0},
		{Recipient: recipientFor(2), Amount: 250, Index: 1},
		{Recipient: recipientFor(3), Amount: 75, Index: 2},
	}

	a, err := Build(sampleIdentity(), entries, []byte("source-csv-bytes"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if a.RecipientCount != 3 {
		t.Fatalf("expected 3 recipients, got %d", a.RecipientCount)
	}
	if a.TotalAmount != "425" {
		t.Fatalf("expected total 425, got %s", a.TotalAmount)
	}

	if err := Validate(a, ValidateOptions{VerifyAllProofs: true}); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuildAcceptsUnsortedInput(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(3), Amount: 1, Index: 2},
		{Recipient: recipientFor(1), Amount: 1, Index: 0},
		{Recipient: recipientFor(2), Amount: 1, Index: 1},
	}
	a, err := Build(sampleIdentity(), entries, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a.Proofs[0].Index != 0 || a.Proofs[2].Index != 2 {
		t.Fatal("proofs were not emitted in index order")
	}
}

func TestBuildRejectsEmptyList(t *testing.T) {
	_, err := Build(sampleIdentity(), nil, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildRejectsGapInIndices(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 1, Index: 0},
		{Recipient: recipientFor(2), Amount: 1, Index: 2},
	}
	_, err := Build(sampleIdentity(), entries, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for index gap, got %v", err)
	}
}

func TestBuildRejectsDuplicateIndex(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 1, Index: 0},
		{Recipient: recipientFor(2), Amount: 1, Index: 0},
	}
	_, err := Build(sampleIdentity(), entries, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate index, got %v", err)
	}
}

func TestBuildRejectsZeroAmount(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 0, Index: 0},
	}
	_, err := Build(sampleIdentity(), entries, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero amount, got %v", err)
	}
}

func TestBuildRejectsMixedMint(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 1, Index: 0, Mint: "USDC"},
		{Recipient: recipientFor(2), Amount: 1, Index: 1, Mint: "USDT"},
	}
	_, err := Build(sampleIdentity(), entries, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for mixed mint, got %v", err)
	}
}

func TestBuildRejectsAmountOverflow(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: ^uint64(0), Index: 0},
		{Recipient: recipientFor(2), Amount: 1, Index: 1},
	}
	_, err := Build(sampleIdentity(), entries, nil)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestValidateCatchesTruncatedProofs(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 10, Index: 0},
		{Recipient: recipientFor(2), Amount: 20, Index: 1},
	}
	a, err := Build(sampleIdentity(), entries, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	a.Proofs = a.Proofs[:1]

	err = Validate(a, ValidateOptions{VerifyAllProofs: true})
	if !errors.Is(err, ErrArtifactInvalid) {
		t.Fatalf("expected ErrArtifactInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "recipient_count") {
		t.Fatalf("expected length mismatch message, got %v", err)
	}
}

func TestValidateCatchesTamperedAmount(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 10, Index: 0},
		{Recipient: recipientFor(2), Amount: 20, Index: 1},
	}
	a, err := Build(sampleIdentity(), entries, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	a.Proofs[0].Amount = "999"

	err = Validate(a, ValidateOptions{VerifyAllProofs: true})
	if !errors.Is(err, ErrArtifactInvalid) {
		t.Fatalf("expected ErrArtifactInvalid after tampering amount, got %v", err)
	}
}

func TestValidateCatchesBadRootAfterTamper(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 10, Index: 0},
		{Recipient: recipientFor(2), Amount: 20, Index: 1},
		{Recipient: recipientFor(3), Amount: 30, Index: 2},
	}
	a, err := Build(sampleIdentity(), entries, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	a.Proofs[2].Recipient = a.Proofs[0].Recipient

	err = Validate(a, ValidateOptions{VerifyAllProofs: true})
	if !errors.Is(err, ErrArtifactInvalid) {
		t.Fatalf("expected ErrArtifactInvalid after swapping recipient, got %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	entries := []PayoutEntry{
		{Recipient: recipientFor(1), Amount: 10, Index: 0},
	}
	a, err := Build(sampleIdentity(), entries, []byte("src"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	data, err := a.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}

	back, err := FromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if err := Validate(back, ValidateOptions{VerifyAllProofs: true}); err != nil {
		t.Fatalf("validate round-tripped artifact: %v", err)
	}
}

func TestSingleRecipientDistribution(t *testing.T) {
	// Mirrors spec.md §8 scenario 1: one recipient, empty proof.
	entries := []PayoutEntry{
		{Recipient: recipientFor(9), Amount: 1000, Index: 0},
	}
	a, err := Build(sampleIdentity(), entries, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(a.Proofs[0].ProofNodes) != 0 {
		t.Fatalf("single recipient proof should be empty, got %d nodes", len(a.Proofs[0].ProofNodes))
	}
	if a.Proofs[0].Recipient == "" || a.MerkleRoot == "" {
		t.Fatal("expected populated recipient and root")
	}
}
