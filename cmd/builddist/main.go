// Copyright 2025 Certen Protocol
//
// Artifact Assembler CLI. Turns a payout list into a
// DistributionArtifact JSON file (spec.md §4.4), the input the Relayer
// consumes.

package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/certen/merkle-distributor/pkg/artifact"
	"github.com/certen/merkle-distributor/pkg/leaf"
)

// payoutInput mirrors artifact.PayoutEntry but with text-safe fields, the
// format a payout-list file is expected to be produced in.
type payoutInput struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Index     uint64 `json:"index"`
	Mint      string `json:"mint,omitempty"`
}

func main() {
	var (
		rewardID    = flag.String("reward-id", "", "reward identifier (part of the distribution identity)")
		windowID    = flag.String("window-id", "", "payout window identifier")
		mint        = flag.String("mint", "", "token mint for this distribution")
		totalAmount = flag.Uint64("total-amount", 0, "declared total payout amount, checked against the sum of entries")
		inputPath   = flag.String("in", "", "path to the payout list JSON file")
		outputPath  = flag.String("out", "", "path to write the assembled artifact JSON")
	)
	flag.Parse()

	if err := run(*rewardID, *windowID, *mint, *totalAmount, *inputPath, *outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(rewardID, windowID, mint string, totalAmount uint64, inputPath, outputPath string) error {
	if inputPath == "" || outputPath == "" {
		return fmt.Errorf("-in and -out are both required")
	}

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading payout list: %w", err)
	}

	var inputs []payoutInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return fmt.Errorf("parsing payout list: %w", err)
	}

	entries, err := decodeEntries(inputs)
	if err != nil {
		return fmt.Errorf("decoding payout entries: %w", err)
	}

	if totalAmount != 0 {
		var sum uint64
		for _, e := range entries {
			sum += e.Amount
		}
		if sum != totalAmount {
			return fmt.Errorf("-total-amount %d does not match sum of entries %d", totalAmount, sum)
		}
	}

	id := leaf.Identity{
		RewardID:    rewardID,
		WindowID:    windowID,
		Mint:        mint,
		TotalAmount: totalAmount,
	}

	a, err := artifact.Build(id, entries, raw)
	if err != nil {
		return fmt.Errorf("building artifact: %w", err)
	}

	out, err := a.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("writing artifact to %s: %w", outputPath, err)
	}

	fmt.Printf("wrote distribution %s (%d recipients) to %s\n", a.DistributionID, a.RecipientCount, outputPath)
	return nil
}

func decodeEntries(inputs []payoutInput) ([]artifact.PayoutEntry, error) {
	entries := make([]artifact.PayoutEntry, 0, len(inputs))
	for i, in := range inputs {
		recipientBytes, err := hex.DecodeString(in.Recipient)
		if err != nil || len(recipientBytes) != 32 {
			return nil, fmt.Errorf("entry %d: recipient must be 32 bytes of hex", i)
		}
		var recipient [32]byte
		copy(recipient[:], recipientBytes)

		amount, err := parseAmount(in.Amount)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		entries = append(entries, artifact.PayoutEntry{
			Recipient: recipient,
			Amount:    amount,
			Index:     in.Index,
			Mint:      in.Mint,
		})
	}
	return entries, nil
}

func parseAmount(s string) (uint64, error) {
	var amount uint64
	if _, err := fmt.Sscanf(s, "%d", &amount); err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}
