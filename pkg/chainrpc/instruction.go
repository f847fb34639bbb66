// Copyright 2025 Certen Protocol
//
// Claim instruction wire encoding (spec.md §6, bit-exact): a fixed-prefix
// discriminator, index, amount, and proof, followed by the fixed account
// ordering the on-chain verifier expects.

package chainrpc

import (
	"encoding/binary"
	"fmt"
)

// ClaimDiscriminator is the fixed-prefix byte sequence the on-chain program
// uses to route an instruction to its claim handler. 8 bytes, matching the
// width conventionally used by Anchor-style Solana programs for instruction
// discriminators.
var ClaimDiscriminator = [8]byte{0xc1, 0x4a, 0x1d, 0x9e, 0x2b, 0x07, 0x55, 0xf3}

// InitializeDiscriminator routes to the initialize handler (spec.md §4.7).
var InitializeDiscriminator = [8]byte{0x3f, 0x8e, 0xaa, 0x61, 0x90, 0x2c, 0xd4, 0x17}

// Account is one account reference in an instruction's account list.
type Account struct {
	Address  [32]byte
	Signer   bool
	Writable bool
}

// ClaimAccounts names the fixed account ordering spec.md §6 requires:
// distribution, uniqueness marker, vault, recipient, recipient token
// account, payer, token program, system program.
type ClaimAccounts struct {
	Distribution          [32]byte
	UniquenessMarker      [32]byte
	Vault                 [32]byte
	Recipient             [32]byte
	RecipientTokenAccount [32]byte
	Payer                 [32]byte
	TokenProgram          [32]byte
	SystemProgram         [32]byte
}

// Accounts returns the fixed-order Account list for a claim instruction.
func (a ClaimAccounts) Accounts() []Account {
	return []Account{
		{Address: a.Distribution, Writable: true},
		{Address: a.UniquenessMarker, Writable: true},
		{Address: a.Vault, Writable: true},
		{Address: a.Recipient},
		{Address: a.RecipientTokenAccount, Writable: true},
		{Address: a.Payer, Signer: true, Writable: true},
		{Address: a.TokenProgram},
		{Address: a.SystemProgram},
	}
}

// ClaimInstructionData carries the instruction's data payload: index,
// amount, and the Merkle proof nodes for leaf (distribution_id, recipient,
// amount) at that index.
type ClaimInstructionData struct {
	Index  uint64
	Amount uint64
	Proof  [][32]byte
}

// EncodeClaimInstruction produces the wire-exact instruction data:
// discriminator || index_le_u64 || amount_le_u64 || proof_len_le_u32 ||
// proof_len * 32 bytes. No other framing is added.
func EncodeClaimInstruction(data ClaimInstructionData) []byte {
	buf := make([]byte, 0, 8+8+8+4+len(data.Proof)*32)
	buf = append(buf, ClaimDiscriminator[:]...)

	var indexLE, amountLE [8]byte
	binary.LittleEndian.PutUint64(indexLE[:], data.Index)
	binary.LittleEndian.PutUint64(amountLE[:], data.Amount)
	buf = append(buf, indexLE[:]...)
	buf = append(buf, amountLE[:]...)

	var proofLenLE [4]byte
	binary.LittleEndian.PutUint32(proofLenLE[:], uint32(len(data.Proof)))
	buf = append(buf, proofLenLE[:]...)

	for _, node := range data.Proof {
		buf = append(buf, node[:]...)
	}
	return buf
}

// DecodeClaimInstruction reverses EncodeClaimInstruction, validating the
// discriminator and the proof length framing.
func DecodeClaimInstruction(data []byte) (ClaimInstructionData, error) {
	const headerLen = 8 + 8 + 8 + 4
	if len(data) < headerLen {
		return ClaimInstructionData{}, fmt.Errorf("chainrpc: claim instruction too short: %d bytes", len(data))
	}
	var discriminator [8]byte
	copy(discriminator[:], data[:8])
	if discriminator != ClaimDiscriminator {
		return ClaimInstructionData{}, fmt.Errorf("chainrpc: unexpected discriminator %x", discriminator)
	}

	index := binary.LittleEndian.Uint64(data[8:16])
	amount := binary.LittleEndian.Uint64(data[16:24])
	proofLen := binary.LittleEndian.Uint32(data[24:28])

	want := headerLen + int(proofLen)*32
	if len(data) != want {
		return ClaimInstructionData{}, fmt.Errorf("chainrpc: claim instruction length mismatch: got %d, want %d", len(data), want)
	}

	proof := make([][32]byte, proofLen)
	for i := range proof {
		offset := headerLen + i*32
		copy(proof[i][:], data[offset:offset+32])
	}

	return ClaimInstructionData{Index: index, Amount: amount, Proof: proof}, nil
}
