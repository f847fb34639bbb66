// Copyright 2025 Certen Protocol
//
// Backend is the Relayer's narrow view of the target ledger: submit a
// claim transaction, check whether a uniqueness marker already exists, and
// watch for confirmation. Adapted from pkg/chain/strategy's
// ChainExecutionStrategy (originally a multi-platform anchor interface);
// narrowed to the single Solana-shaped verifier program this spec targets
// and to the operations the Relayer's batch loop actually needs.

package chainrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// CommitmentLevel mirrors Solana's confirmation levels.
type CommitmentLevel string

const (
	CommitmentProcessed CommitmentLevel = "processed"
	CommitmentConfirmed CommitmentLevel = "confirmed"
	CommitmentFinalized CommitmentLevel = "finalized"
)

// SubmitResult is the outcome of broadcasting a claim transaction.
type SubmitResult struct {
	TxReference string // opaque signature/hash the Claim Store records
	Submitted   time.Time
}

// AccountExistsResult reports whether an account is present on-chain and,
// if so, its raw data (used to decode a uniqueness marker).
type AccountExistsResult struct {
	Exists bool
	Data   []byte
}

// Backend is the interface the Relayer depends on. Any implementation
// satisfying it interoperates with the Verifier Contract described in
// spec.md §4.7, regardless of transport.
type Backend interface {
	// AccountExists checks whether an account at address currently exists,
	// used for ledger reconciliation (spec.md §4.6 step a) against the
	// uniqueness-marker address.
	AccountExists(ctx context.Context, address [32]byte) (AccountExistsResult, error)

	// SubmitBatch broadcasts a single transaction carrying every item's
	// claim instruction (prefixed with a create-account instruction for
	// items whose recipient token account does not yet exist), and waits
	// up to opts.ConfirmationTimeout for the configured commitment level.
	// The batch is atomic: it lands or fails as one unit, so the Relayer
	// applies the same outcome to every claim in items (spec.md §4.6 f).
	SubmitBatch(ctx context.Context, items []ClaimBatchItem, opts SubmitOptions) (SubmitResult, error)

	// VaultBalance returns the current token balance held by the vault
	// account, used to detect InsufficientFunds before submitting a batch.
	VaultBalance(ctx context.Context, vault [32]byte) (uint64, error)

	// HealthCheck verifies connectivity to the RPC endpoint.
	HealthCheck(ctx context.Context) error
}

// SubmitOptions carries the per-submission tunables from spec.md §6's
// enumerated Relayer configuration.
type SubmitOptions struct {
	Payer                         [32]byte
	PayerSignature                [64]byte // authorizes the batch; see pkg/relayer.SignBatch
	CommitmentLevel               CommitmentLevel
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	ConfirmationTimeout           time.Duration
	ConfirmationPoll              time.Duration
}

// HTTPBackend implements Backend over a JSON-RPC 2.0 HTTP endpoint, the
// wire protocol Solana (and compatible SVM chains) expose. No chain SDK
// exists anywhere in this pack's dependency graph, so this client speaks
// the protocol directly with net/http + encoding/json rather than
// introducing an unrelated third-party dependency.
type HTTPBackend struct {
	endpoint   string
	programID  [32]byte
	httpClient *http.Client
	logger     *log.Logger
}

// BackendOption is a functional option for configuring an HTTPBackend.
type BackendOption func(*HTTPBackend)

// WithLogger sets a custom logger for the backend.
func WithLogger(logger *log.Logger) BackendOption {
	return func(b *HTTPBackend) { b.logger = logger }
}

// WithHTTPClient overrides the default HTTP client (e.g. for test fakes).
func WithHTTPClient(client *http.Client) BackendOption {
	return func(b *HTTPBackend) { b.httpClient = client }
}

// NewHTTPBackend connects to a JSON-RPC endpoint for the given verifier
// program.
func NewHTTPBackend(endpoint string, programID [32]byte, opts ...BackendOption) (*HTTPBackend, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("chainrpc: endpoint cannot be empty")
	}
	b := &HTTPBackend{
		endpoint:   endpoint,
		programID:  programID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.New(log.Writer(), "[ChainRPC] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (b *HTTPBackend) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("chainrpc: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("chainrpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransportFailure, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: rpc error %d: %s", ErrTransportFailure, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("chainrpc: decode result: %w", err)
	}
	return nil
}

// AccountExists implements Backend via the getAccountInfo RPC method.
func (b *HTTPBackend) AccountExists(ctx context.Context, address [32]byte) (AccountExistsResult, error) {
	var result struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	params := []interface{}{
		encodeAddress(address),
		map[string]string{"encoding": "base64"},
	}
	if err := b.call(ctx, "getAccountInfo", params, &result); err != nil {
		return AccountExistsResult{}, err
	}
	if result.Value == nil {
		return AccountExistsResult{Exists: false}, nil
	}
	var data []byte
	if len(result.Value.Data) > 0 {
		decoded, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
		if err != nil {
			return AccountExistsResult{}, fmt.Errorf("chainrpc: decode account data: %w", err)
		}
		data = decoded
	}
	return AccountExistsResult{Exists: true, Data: data}, nil
}

// VaultBalance implements Backend via the getTokenAccountBalance RPC method.
func (b *HTTPBackend) VaultBalance(ctx context.Context, vault [32]byte) (uint64, error) {
	var result struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := b.call(ctx, "getTokenAccountBalance", []interface{}{encodeAddress(vault)}, &result); err != nil {
		return 0, err
	}
	var amount uint64
	if _, err := fmt.Sscanf(result.Value.Amount, "%d", &amount); err != nil {
		return 0, fmt.Errorf("chainrpc: parse vault balance %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

// ClaimBatchItem is one claim's contribution to a batched transaction: its
// accounts, its instruction data, and whether a create-account instruction
// for its recipient token account must be prepended (spec.md §4.6 step b).
type ClaimBatchItem struct {
	Accounts               ClaimAccounts
	Data                   ClaimInstructionData
	CreateRecipientAccount bool
}

// SubmitBatch implements Backend via sendTransaction followed by polling
// getSignatureStatuses up to opts.ConfirmationTimeout.
func (b *HTTPBackend) SubmitBatch(ctx context.Context, items []ClaimBatchItem, opts SubmitOptions) (SubmitResult, error) {
	if len(items) == 0 {
		return SubmitResult{}, fmt.Errorf("chainrpc: cannot submit an empty batch")
	}

	instructions := make([]map[string]interface{}, 0, len(items)*2)
	for _, item := range items {
		if item.CreateRecipientAccount {
			instructions = append(instructions, map[string]interface{}{
				"kind":    "create_token_account",
				"account": encodeAddress(item.Accounts.RecipientTokenAccount),
				"owner":   encodeAddress(item.Accounts.Recipient),
			})
		}
		instructions = append(instructions, map[string]interface{}{
			"kind":     "claim",
			"accounts": item.Accounts.Accounts(),
			"data":     EncodeClaimInstruction(item.Data),
		})
	}

	txEnvelope := map[string]interface{}{
		"program":         encodeAddress(b.programID),
		"instructions":    instructions,
		"compute_limit":   opts.ComputeUnitLimit,
		"compute_price":   opts.ComputeUnitPriceMicroLamports,
		"payer":           encodeAddress(opts.Payer),
		"payer_signature": base58.Encode(opts.PayerSignature[:]),
	}
	encodedTx, err := json.Marshal(txEnvelope)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("chainrpc: encode transaction: %w", err)
	}

	var signature string
	if err := b.call(ctx, "sendTransaction", []interface{}{string(encodedTx)}, &signature); err != nil {
		return SubmitResult{}, err
	}

	if err := b.waitForCommitment(ctx, signature, opts); err != nil {
		return SubmitResult{}, err
	}

	return SubmitResult{TxReference: signature, Submitted: time.Now()}, nil
}

func (b *HTTPBackend) waitForCommitment(ctx context.Context, signature string, opts SubmitOptions) error {
	timeout := opts.ConfirmationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	poll := opts.ConfirmationPoll
	if poll <= 0 {
		poll = time.Second
	}

	deadline := time.Now().Add(timeout)
	for {
		status, err := b.signatureStatus(ctx, signature)
		if err != nil {
			return err
		}
		if status.confirmationMet(opts.CommitmentLevel) {
			if status.Err != nil {
				return translateProgramError(status.Err)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return ErrExpired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

type signatureStatusResult struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

func (s signatureStatusResult) confirmationMet(want CommitmentLevel) bool {
	if s.ConfirmationStatus == "" {
		return false
	}
	rank := map[CommitmentLevel]int{
		CommitmentProcessed: 0,
		CommitmentConfirmed: 1,
		CommitmentFinalized: 2,
	}
	got, ok := rank[CommitmentLevel(s.ConfirmationStatus)]
	if !ok {
		return false
	}
	return got >= rank[want]
}

func (b *HTTPBackend) signatureStatus(ctx context.Context, signature string) (signatureStatusResult, error) {
	var result struct {
		Value []signatureStatusResult `json:"value"`
	}
	if err := b.call(ctx, "getSignatureStatuses", []interface{}{[]string{signature}}, &result); err != nil {
		return signatureStatusResult{}, err
	}
	if len(result.Value) == 0 {
		return signatureStatusResult{}, nil
	}
	return result.Value[0], nil
}

// translateProgramError maps a raw on-chain error payload to the error
// taxonomy in spec.md §7. Any program error not recognized here is treated
// as a transient transport failure.
func translateProgramError(raw json.RawMessage) error {
	s := string(raw)
	switch {
	case containsAny(s, "already_claimed", "AlreadyClaimed"):
		return ErrAlreadyClaimed
	case containsAny(s, "proof_invalid", "InvalidProof"):
		return ErrProofInvalid
	case containsAny(s, "insufficient", "InsufficientFunds"):
		return ErrInsufficientFunds
	default:
		return fmt.Errorf("%w: program error %s", ErrTransportFailure, s)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// encodeAddress renders a 32-byte address in the base58 form Solana-style
// RPC endpoints expect for account identifiers.
func encodeAddress(addr [32]byte) string {
	return base58.Encode(addr[:])
}


// HealthCheck implements Backend via the getHealth RPC method.
func (b *HTTPBackend) HealthCheck(ctx context.Context) error {
	return b.call(ctx, "getHealth", nil, nil)
}
