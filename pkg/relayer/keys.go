// Copyright 2025 Certen Protocol
//
// Payer key handling. The Relayer configuration's payer_key (spec.md §6)
// is an opaque 64-byte secret: an ed25519 private key in the conventional
// seed||public-key layout, the same shape Solana keypairs use on disk.

package relayer

import (
	"fmt"

	"github.com/FactomProject/ed25519"
)

// PayerKeySize is the width, in bytes, of the configured payer secret.
const PayerKeySize = 64

// DerivePayerAddress extracts the public key half of a 64-byte ed25519
// private key, used as the Payer account in every submitted transaction.
func DerivePayerAddress(privateKey [PayerKeySize]byte) [32]byte {
	var pub [32]byte
	copy(pub[:], privateKey[32:])
	return pub
}

// SignBatch signs message with the payer's private key, authorizing a
// batch transaction before it is submitted (spec.md §4.6 step e).
func SignBatch(privateKey [PayerKeySize]byte, message []byte) [64]byte {
	key := privateKey
	return *ed25519.Sign(&key, message)
}

// ParsePayerKey validates raw as a well-formed 64-byte payer secret.
func ParsePayerKey(raw []byte) ([PayerKeySize]byte, error) {
	var out [PayerKeySize]byte
	if len(raw) != PayerKeySize {
		return out, fmt.Errorf("relayer: payer key must be %d bytes, got %d", PayerKeySize, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
