// Copyright 2025 Certen Protocol

package chainrpc

import "testing"

func TestDeriveDistributionAddressIsDeterministic(t *testing.T) {
	programID := [32]byte{1}
	distributionID := [32]byte{2}
	a := DeriveDistributionAddress(programID, distributionID)
	b := DeriveDistributionAddress(programID, distributionID)
	if a != b {
		t.Fatal("expected repeated derivation with identical inputs to match")
	}
}

func TestDeriveDistributionAddressVariesWithDistributionID(t *testing.T) {
	programID := [32]byte{1}
	a := DeriveDistributionAddress(programID, [32]byte{2})
	b := DeriveDistributionAddress(programID, [32]byte{3})
	if a == b {
		t.Fatal("expected different distribution IDs to derive different addresses")
	}
}

func TestDeriveAddressesAreDistinctAcrossSeedDomains(t *testing.T) {
	programID := [32]byte{1}
	distributionID := [32]byte{2}
	distribution := DeriveDistributionAddress(programID, distributionID)
	vault := DeriveVaultAddress(programID, distributionID)
	if distribution == vault {
		t.Fatal("distribution and vault seeds must derive different addresses")
	}
}

func TestDeriveUniquenessMarkerAddressVariesWithIndex(t *testing.T) {
	programID := [32]byte{1}
	distributionPubkey := [32]byte{2}
	m0 := DeriveUniquenessMarkerAddress(programID, distributionPubkey, 0)
	m1 := DeriveUniquenessMarkerAddress(programID, distributionPubkey, 1)
	if m0 == m1 {
		t.Fatal("expected different claim indices to derive different uniqueness markers")
	}
}

func TestDeriveUniquenessMarkerAddressVariesWithProgramID(t *testing.T) {
	distributionPubkey := [32]byte{2}
	m0 := DeriveUniquenessMarkerAddress([32]byte{1}, distributionPubkey, 5)
	m1 := DeriveUniquenessMarkerAddress([32]byte{9}, distributionPubkey, 5)
	if m0 == m1 {
		t.Fatal("expected different program IDs to derive different uniqueness markers")
	}
}

func TestDeriveRecipientTokenAccountVariesWithRecipient(t *testing.T) {
	programID := [32]byte{1}
	a := DeriveRecipientTokenAccount(programID, [32]byte{2})
	b := DeriveRecipientTokenAccount(programID, [32]byte{3})
	if a == b {
		t.Fatal("expected different recipients to derive different token accounts")
	}
}

func TestWellKnownProgramIDsAreStableAndDistinct(t *testing.T) {
	if TokenProgramID == SystemProgramID {
		t.Fatal("token program and system program placeholders must differ")
	}
	if TokenProgramID != wellKnownProgram("certen-merkle-distributor/token-program") {
		t.Fatal("expected TokenProgramID to be deterministic across calls")
	}
}
