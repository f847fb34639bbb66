// Copyright 2025 Certen Protocol
//
// Postgres-backed Claim Store. Durable, multi-instance safe: every
// mutating operation is a single-row UPDATE ... WHERE state = ... so two
// relayer instances racing on the same claim cannot both win.

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/certen/merkle-distributor/pkg/artifact"
	"github.com/certen/merkle-distributor/pkg/claimstore"
)

// Store implements claimstore.Store against the distributions/claims
// tables.
type Store struct {
	client *Client
}

// New wraps an already-connected Client as a claimstore.Store.
func New(client *Client) *Store {
	return &Store{client: client}
}

// Open applies pending migrations against client and returns a
// ready-to-use Store.
func Open(ctx context.Context, client *Client) (*Store, error) {
	if err := client.MigrateUp(ctx); err != nil {
		return nil, fmt.Errorf("migrate claim store schema: %w", err)
	}
	return New(client), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// SeedFromArtifact inserts a pending claim row per proof entry and an
// active distribution row, both idempotently (ON CONFLICT DO NOTHING).
func (s *Store) SeedFromArtifact(ctx context.Context, a *artifact.Artifact) error {
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO distributions (distribution_id, merkle_root, recipient_count, total_amount, status, confirmed_claims)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (distribution_id) DO NOTHING
	`, a.DistributionID, a.MerkleRoot, a.RecipientCount, a.TotalAmount, claimstore.DistributionActive)
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO claims (distribution_id, index, recipient, amount, state, attempts)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (distribution_id, index) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare claim insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range a.Proofs {
		amount, err := strconv.ParseUint(p.Amount, 10, 64)
		if err != nil {
			return fmt.Errorf("parse amount for index %d: %w", p.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, a.DistributionID, p.Index, p.Recipient, amount, claimstore.StatePending); err != nil {
			return fmt.Errorf("insert claim %d: %w", p.Index, err)
		}
	}

	return tx.Commit()
}

// NextPending returns pending/failed claims under maxAttempts, ordered
// by index ascending.
func (s *Store) NextPending(ctx context.Context, distributionID string, maxAttempts uint32, limit int) ([]claimstore.ClaimRecord, error) {
	query := `
		SELECT distribution_id, index, recipient, amount, state, attempts,
		       last_attempt_at, confirmed_at, tx_reference, last_error_message
		FROM claims
		WHERE distribution_id = $1 AND state IN ('pending', 'failed') AND attempts < $2
		ORDER BY index ASC
	`
	args := []interface{}{distributionID, maxAttempts}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query next pending: %w", err)
	}
	defer rows.Close()

	var claims []claimstore.ClaimRecord
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// MarkSubmitted transitions pending|failed -> submitted, incrementing
// attempts, in one conditional UPDATE.
func (s *Store) MarkSubmitted(ctx context.Context, distributionID string, index uint64) error {
	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE claims
		SET state = $1, attempts = attempts + 1, last_attempt_at = now()
		WHERE distribution_id = $2 AND index = $3 AND state IN ('pending', 'failed')
	`, claimstore.StateSubmitted, distributionID, index)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return requireTransition(ctx, s, res, distributionID, index, claimstore.StateSubmitted)
}

// MarkConfirmed transitions pending|submitted|failed -> confirmed. Confirming
// an already-confirmed claim is a no-op.
func (s *Store) MarkConfirmed(ctx context.Context, distributionID string, index uint64, txReference string) error {
	current, err := s.getClaimState(ctx, distributionID, index)
	if err != nil {
		return err
	}
	if current == claimstore.StateConfirmed {
		return nil
	}
	if !claimstore.CanTransition(current, claimstore.StateConfirmed) {
		return fmt.Errorf("%w: %s -> confirmed", claimstore.ErrInvalidTransition, current)
	}

	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confirm tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE claims
		SET state = $1, confirmed_at = now(), tx_reference = $2
		WHERE distribution_id = $3 AND index = $4 AND state = $5
	`, claimstore.StateConfirmed, txReference, distributionID, index, current)
	if err != nil {
		return fmt.Errorf("mark confirmed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil // lost the race to a concurrent confirm; treat as success
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE distributions SET confirmed_claims = confirmed_claims + 1 WHERE distribution_id = $1
	`, distributionID); err != nil {
		return fmt.Errorf("increment confirmed_claims: %w", err)
	}

	return tx.Commit()
}

// MarkFailed transitions submitted -> failed, incrementing attempts and
// recording the error.
func (s *Store) MarkFailed(ctx context.Context, distributionID string, index uint64, errMessage string) error {
	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE claims
		SET state = $1, attempts = attempts + 1, last_attempt_at = now(), last_error_message = $2
		WHERE distribution_id = $3 AND index = $4 AND state = $5
	`, claimstore.StateFailed, errMessage, distributionID, index, claimstore.StateSubmitted)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(ctx, s, res, distributionID, index, claimstore.StateFailed)
}

// CountUnconfirmed returns the number of claims not yet confirmed.
func (s *Store) CountUnconfirmed(ctx context.Context, distributionID string) (int, error) {
	var count int
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT count(*) FROM claims WHERE distribution_id = $1 AND state != $2
	`, distributionID, claimstore.StateConfirmed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unconfirmed: %w", err)
	}
	return count, nil
}

// GetDistribution returns the coarse-grained envelope record.
func (s *Store) GetDistribution(ctx context.Context, distributionID string) (*claimstore.DistributionRecord, error) {
	var (
		d          claimstore.DistributionRecord
		totalStr   string
		statusText string
	)
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT distribution_id, merkle_root, recipient_count, total_amount, status, confirmed_claims, created_at
		FROM distributions WHERE distribution_id = $1
	`, distributionID).Scan(&d.DistributionID, &d.MerkleRoot, &d.RecipientCount, &totalStr, &statusText, &d.ConfirmedClaims, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, claimstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution: %w", err)
	}
	total, err := strconv.ParseUint(totalStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	d.TotalAmount = total
	d.Status = claimstore.DistributionStatus(statusText)
	return &d, nil
}

// SetDistributionStatus transitions the envelope status. active ->
// completed is idempotent: re-issuing the same status is a no-op.
func (s *Store) SetDistributionStatus(ctx context.Context, distributionID string, status claimstore.DistributionStatus) error {
	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE distributions SET status = $1 WHERE distribution_id = $2
	`, status, distributionID)
	if err != nil {
		return fmt.Errorf("set distribution status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return claimstore.ErrNotFound
	}
	return nil
}

func (s *Store) getClaimState(ctx context.Context, distributionID string, index uint64) (claimstore.ClaimState, error) {
	var state string
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT state FROM claims WHERE distribution_id = $1 AND index = $2
	`, distributionID, index).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", claimstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get claim state: %w", err)
	}
	return claimstore.ClaimState(state), nil
}

// requireTransition turns a zero-row UPDATE result into a precise error:
// either the claim doesn't exist, or it exists but wasn't in a state the
// transition accepts.
func requireTransition(ctx context.Context, s *Store, res sql.Result, distributionID string, index uint64, to claimstore.ClaimState) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	current, err := s.getClaimState(ctx, distributionID, index)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", claimstore.ErrInvalidTransition, current, to)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (claimstore.ClaimRecord, error) {
	var (
		c                claimstore.ClaimRecord
		amountStr        string
		state            string
		lastAttemptAt    sql.NullTime
		confirmedAt      sql.NullTime
		txReference      sql.NullString
		lastErrorMessage sql.NullString
	)
	if err := row.Scan(&c.DistributionID, &c.Index, &c.Recipient, &amountStr, &state, &c.Attempts,
		&lastAttemptAt, &confirmedAt, &txReference, &lastErrorMessage); err != nil {
		return c, err
	}

	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return c, fmt.Errorf("parse amount: %w", err)
	}
	c.Amount = amount
	c.State = claimstore.ClaimState(state)

	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		c.LastAttemptAt = &t
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		c.ConfirmedAt = &t
	}
	if txReference.Valid {
		v := txReference.String
		c.TxReference = &v
	}
	if lastErrorMessage.Valid {
		v := lastErrorMessage.String
		c.LastErrorMessage = &v
	}

	return c, nil
}
