// Copyright 2025 Certen Protocol

package chainrpc

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeClaimInstructionRoundTrips(t *testing.T) {
	data := ClaimInstructionData{
		Index:  7,
		Amount: 123456789,
		Proof: [][32]byte{
			{1, 2, 3},
			{4, 5, 6},
		},
	}
	encoded := EncodeClaimInstruction(data)
	decoded, err := DecodeClaimInstruction(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Index != data.Index || decoded.Amount != data.Amount {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, data)
	}
	if len(decoded.Proof) != len(data.Proof) {
		t.Fatalf("proof length mismatch: got %d, want %d", len(decoded.Proof), len(data.Proof))
	}
	for i := range data.Proof {
		if decoded.Proof[i] != data.Proof[i] {
			t.Fatalf("proof node %d mismatch", i)
		}
	}
}

func TestEncodeClaimInstructionHasDiscriminatorPrefix(t *testing.T) {
	encoded := EncodeClaimInstruction(ClaimInstructionData{Index: 0, Amount: 0})
	if !bytes.Equal(encoded[:8], ClaimDiscriminator[:]) {
		t.Fatal("expected encoded instruction to begin with the claim discriminator")
	}
}

func TestDecodeClaimInstructionRejectsWrongDiscriminator(t *testing.T) {
	encoded := EncodeClaimInstruction(ClaimInstructionData{Index: 1, Amount: 1})
	encoded[0] ^= 0xff
	if _, err := DecodeClaimInstruction(encoded); err == nil {
		t.Fatal("expected error for corrupted discriminator")
	}
}

func TestDecodeClaimInstructionRejectsTruncatedProof(t *testing.T) {
	encoded := EncodeClaimInstruction(ClaimInstructionData{
		Index: 1, Amount: 1,
		Proof: [][32]byte{{9}},
	})
	truncated := encoded[:len(encoded)-10]
	if _, err := DecodeClaimInstruction(truncated); err == nil {
		t.Fatal("expected error for truncated proof data")
	}
}

func TestClaimAccountsOrderingMatchesWireContract(t *testing.T) {
	accounts := ClaimAccounts{
		Distribution:          [32]byte{1},
		UniquenessMarker:      [32]byte{2},
		Vault:                 [32]byte{3},
		Recipient:             [32]byte{4},
		RecipientTokenAccount: [32]byte{5},
		Payer:                 [32]byte{6},
		TokenProgram:          [32]byte{7},
		SystemProgram:         [32]byte{8},
	}
	list := accounts.Accounts()
	if len(list) != 8 {
		t.Fatalf("expected 8 accounts, got %d", len(list))
	}
	for i, want := range []byte{1, 2, 3, 4, 5, 6, 7, 8} {
		if list[i].Address[0] != want {
			t.Fatalf("account %d out of order: got %d, want %d", i, list[i].Address[0], want)
		}
	}
	if !list[5].Signer {
		t.Fatal("payer account must be a signer")
	}
	if list[3].Writable {
		t.Fatal("recipient account is read-only")
	}
}
