// Copyright 2025 Certen Protocol

package relayer

import (
	"fmt"
	"log"
	"time"

	"github.com/certen/merkle-distributor/pkg/chainrpc"
)

// Config holds the Relayer's tunables, enumerated verbatim in spec.md §6.
// Constructed once at program entry and passed down; the Relayer holds no
// module-level mutable state (spec.md §8).
type Config struct {
	ProgramID [32]byte
	PayerKey  [PayerKeySize]byte

	BatchSize   int
	MaxAttempts uint32
	RetryDelay  time.Duration

	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64

	CommitmentLevel     chainrpc.CommitmentLevel
	ConfirmationTimeout time.Duration
	ConfirmationPoll    time.Duration

	InterBatchPacing time.Duration

	Logger *log.Logger
}

func (c Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("relayer: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxAttempts == 0 {
		return fmt.Errorf("relayer: max_attempts must be positive")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = log.New(log.Writer(), "[Relayer] ", log.LstdFlags)
	}
	if c.CommitmentLevel == "" {
		c.CommitmentLevel = chainrpc.CommitmentConfirmed
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = 30 * time.Second
	}
	if c.ConfirmationPoll <= 0 {
		c.ConfirmationPoll = time.Second
	}
	if c.InterBatchPacing <= 0 {
		c.InterBatchPacing = 500 * time.Millisecond
	}
	return c
}
