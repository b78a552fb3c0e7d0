package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shahdco/authcore/internal"
	"github.com/shahdco/authcore/ledger"
)

// Tokens implements ledger.Store over the refresh_tokens table. Rows are
// keyed by the SHA-256 hash of the client-held value, so a database dump
// alone cannot replay sessions.
type Tokens struct {
	db *sql.DB
}

// NewTokens describes the newtokens operation and its observable behavior.
//
// NewTokens returns derived values or handles for continued use when successful.
func NewTokens(db *sql.DB) *Tokens {
	return &Tokens{db: db}
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Tokens) Create(ctx context.Context, t ledger.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (value_hash, account_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		internal.HashRefreshValue(t.Value), t.AccountID, t.IssuedAt, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Tokens) Get(ctx context.Context, value string) (ledger.Token, error) {
	var (
		t          ledger.Token
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, issued_at, expires_at, revoked_at, replaced_by
		 FROM refresh_tokens WHERE value_hash = $1`,
		internal.HashRefreshValue(value)).
		Scan(&t.AccountID, &t.IssuedAt, &t.ExpiresAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Token{}, ledger.ErrNotFound
		}
		return ledger.Token{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	if revokedAt.Valid {
		t.RevokedAt = revokedAt.Time
	}
	if replacedBy.Valid {
		t.ReplacedBy = replacedBy.String
	}
	return t, nil
}

// Rotate describes the rotate operation and its observable behavior.
//
// Rotate may return an error when input validation, dependency calls, or security checks fail.
// Rotate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The old row is locked with SELECT ... FOR UPDATE so concurrent
// rotations of one value serialize and exactly one succeeds.
func (s *Tokens) Rotate(ctx context.Context, oldValue, newValue string, expiresAt time.Time) (ledger.Token, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Token{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	oldHash := internal.HashRefreshValue(oldValue)
	newHash := internal.HashRefreshValue(newValue)

	var (
		accountID    string
		rowExpiresAt time.Time
		revokedAt    sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT account_id, expires_at, revoked_at FROM refresh_tokens
		 WHERE value_hash = $1 FOR UPDATE`, oldHash).
		Scan(&accountID, &rowExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Token{}, ledger.ErrNotFound
		}
		return ledger.Token{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	now := time.Now()
	if revokedAt.Valid {
		return ledger.Token{}, ledger.ErrRevoked
	}
	if !now.Before(rowExpiresAt) {
		return ledger.Token{}, ledger.ErrExpired
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3
		 WHERE value_hash = $1`, oldHash, now, newHash); err != nil {
		return ledger.Token{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (value_hash, account_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)`, newHash, accountID, now, expiresAt); err != nil {
		return ledger.Token{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.Token{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	return ledger.Token{
		Value:     newValue,
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Tokens) Revoke(ctx context.Context, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE value_hash = $1 AND revoked_at IS NULL`,
		internal.HashRefreshValue(value), time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	// Already-revoked rows are left untouched; revocation is idempotent.
	_, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll describes the revokeall operation and its observable behavior.
//
// RevokeAll may return an error when input validation, dependency calls, or security checks fail.
// RevokeAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Tokens) RevokeAll(ctx context.Context, accountID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2`,
		accountID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return int(affected), nil
}
