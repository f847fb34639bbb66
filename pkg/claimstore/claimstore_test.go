// Copyright 2025 Certen Protocol

package claimstore

import "testing"

func TestCanTransitionFailedToSubmittedOrConfirmed(t *testing.T) {
	if !CanTransition(StateFailed, StateSubmitted) {
		t.Fatal("expected failed -> submitted to be permitted (retry)")
	}
	if !CanTransition(StateFailed, StateConfirmed) {
		t.Fatal("expected failed -> confirmed to be permitted (ledger reconciliation discovers the claim already landed)")
	}
	if CanTransition(StateFailed, StatePending) {
		t.Fatal("failed -> pending must remain forbidden")
	}
}

func TestCanTransitionConfirmedIsTerminal(t *testing.T) {
	for _, to := range []ClaimState{StatePending, StateSubmitted, StateFailed, StateConfirmed} {
		if CanTransition(StateConfirmed, to) {
			t.Fatalf("confirmed -> %s must be forbidden", to)
		}
	}
}

func TestCanTransitionPendingReconciliation(t *testing.T) {
	if !CanTransition(StatePending, StateConfirmed) {
		t.Fatal("expected pending -> confirmed to be permitted (ledger reconciliation)")
	}
	if !CanTransition(StatePending, StateSubmitted) {
		t.Fatal("expected pending -> submitted to be permitted")
	}
}
