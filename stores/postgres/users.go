package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	authcore "github.com/shahdco/authcore"
)

// Users implements authcore.UserStore over the accounts and backup_codes
// tables.
type Users struct {
	db *sql.DB
}

// NewUsers describes the newusers operation and its observable behavior.
//
// NewUsers returns derived values or handles for continued use when successful.
func NewUsers(db *sql.DB) *Users {
	return &Users{db: db}
}

const accountColumns = `id, email, password_hash, role, active, twofactor_enabled,
	failed_attempts, lockout_end, last_login_at, created_at`

func scanAccount(row *sql.Row) (authcore.Account, error) {
	var (
		a           authcore.Account
		lockoutEnd  sql.NullTime
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &a.TwoFactorEnabled,
		&a.FailedAttempts, &lockoutEnd, &lastLoginAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.Account{}, authcore.ErrUserNotFound
		}
		return authcore.Account{}, fmt.Errorf("postgres: scan account: %w", err)
	}
	if lockoutEnd.Valid {
		a.LockoutEnd = lockoutEnd.Time
	}
	if lastLoginAt.Valid {
		a.LastLoginAt = lastLoginAt.Time
	}
	return a, nil
}

// GetByEmail describes the getbyemail operation and its observable behavior.
//
// GetByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) GetByEmail(ctx context.Context, email string) (authcore.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// GetByID describes the getbyid operation and its observable behavior.
//
// GetByID may return an error when input validation, dependency calls, or security checks fail.
// GetByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) GetByID(ctx context.Context, id string) (authcore.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) Create(ctx context.Context, a authcore.Account) (authcore.Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, role, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Email, a.PasswordHash, a.Role, a.Active, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.Account{}, authcore.ErrDuplicateEmail
		}
		return authcore.Account{}, fmt.Errorf("postgres: create account: %w", err)
	}
	return a, nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, hash)
}

// IncrementFailedAttempts describes the incrementfailedattempts operation and its observable behavior.
//
// IncrementFailedAttempts may return an error when input validation, dependency calls, or security checks fail.
// IncrementFailedAttempts does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE accounts SET failed_attempts = failed_attempts + 1
		 WHERE id = $1 RETURNING failed_attempts`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, authcore.ErrUserNotFound
		}
		return 0, fmt.Errorf("postgres: increment failed attempts: %w", err)
	}
	return count, nil
}

// SetLockout describes the setlockout operation and its observable behavior.
//
// SetLockout may return an error when input validation, dependency calls, or security checks fail.
// SetLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) SetLockout(ctx context.Context, id string, until time.Time) error {
	return s.execOne(ctx,
		`UPDATE accounts SET lockout_end = $2 WHERE id = $1`, id, until)
}

// ResetLockout describes the resetlockout operation and its observable behavior.
//
// ResetLockout may return an error when input validation, dependency calls, or security checks fail.
// ResetLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) ResetLockout(ctx context.Context, id string) error {
	return s.execOne(ctx,
		`UPDATE accounts SET failed_attempts = 0, lockout_end = NULL WHERE id = $1`, id)
}

// SetLastLogin describes the setlastlogin operation and its observable behavior.
//
// SetLastLogin may return an error when input validation, dependency calls, or security checks fail.
// SetLastLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx,
		`UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
}

// GetTwoFactor describes the gettwofactor operation and its observable behavior.
//
// GetTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// GetTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) GetTwoFactor(ctx context.Context, id string) (authcore.TwoFactorRecord, error) {
	var (
		secret    []byte
		confirmed bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT twofactor_secret, twofactor_confirmed FROM accounts WHERE id = $1`,
		id).Scan(&secret, &confirmed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.TwoFactorRecord{}, authcore.ErrUserNotFound
		}
		return authcore.TwoFactorRecord{}, fmt.Errorf("postgres: get two-factor: %w", err)
	}
	if len(secret) == 0 {
		return authcore.TwoFactorRecord{}, authcore.ErrTwoFactorNotEnrolled
	}
	return authcore.TwoFactorRecord{Secret: secret, Confirmed: confirmed}, nil
}

// SetTwoFactor describes the settwofactor operation and its observable behavior.
//
// SetTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// SetTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) SetTwoFactor(ctx context.Context, id string, rec authcore.TwoFactorRecord) error {
	return s.execOne(ctx,
		`UPDATE accounts SET twofactor_secret = $2, twofactor_confirmed = $3,
		 twofactor_enabled = $3 WHERE id = $1`,
		id, rec.Secret, rec.Confirmed)
}

// ConfirmTwoFactor describes the confirmtwofactor operation and its observable behavior.
//
// ConfirmTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) ConfirmTwoFactor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET twofactor_confirmed = TRUE, twofactor_enabled = TRUE
		 WHERE id = $1 AND twofactor_secret IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("postgres: confirm two-factor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: confirm two-factor: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// The guard matches no row both for a missing account and for an
	// account with no pending secret; tell them apart for the caller.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: confirm two-factor: %w", err)
	}
	if exists {
		return authcore.ErrTwoFactorNotEnrolled
	}
	return authcore.ErrUserNotFound
}

// ClearTwoFactor describes the cleartwofactor operation and its observable behavior.
//
// ClearTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// ClearTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) ClearTwoFactor(ctx context.Context, id string) error {
	return s.execOne(ctx,
		`UPDATE accounts SET twofactor_secret = NULL, twofactor_confirmed = FALSE,
		 twofactor_enabled = FALSE WHERE id = $1`, id)
}

// ReplaceBackupCodes describes the replacebackupcodes operation and its observable behavior.
//
// ReplaceBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// ReplaceBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) ReplaceBackupCodes(ctx context.Context, id string, hashes []authcore.BackupCodeHash) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin replace backup codes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE account_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: clear backup codes: %w", err)
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (account_id, code_hash) VALUES ($1, $2)`,
			id, h[:]); err != nil {
			return fmt.Errorf("postgres: insert backup code: %w", err)
		}
	}

	return tx.Commit()
}

// ConsumeBackupCode describes the consumebackupcode operation and its observable behavior.
//
// ConsumeBackupCode may return an error when input validation, dependency calls, or security checks fail.
// ConsumeBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Users) ConsumeBackupCode(ctx context.Context, id string, hash authcore.BackupCodeHash) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE account_id = $1 AND code_hash = $2`,
		id, hash[:])
	if err != nil {
		return false, fmt.Errorf("postgres: consume backup code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: consume backup code: %w", err)
	}
	return affected == 1, nil
}

func (s *Users) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	if affected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// isUniqueViolation matches SQLSTATE 23505 without binding to a concrete
// driver error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
