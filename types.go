package authcore

import (
	"context"
	"time"
)

// Account is the credential record managed through [UserStore]. It carries
// credential hashes, the lockout counters, and the two-factor flag.
type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	Role             string
	Active           bool
	TwoFactorEnabled bool
	FailedAttempts   int
	LockoutEnd       time.Time
	LastLoginAt      time.Time
	CreatedAt        time.Time
}

// Locked reports whether the account sits inside an active lockout window.
func (a Account) Locked(now time.Time) bool {
	return !a.LockoutEnd.IsZero() && now.Before(a.LockoutEnd)
}

// TwoFactorRecord is retrieved from [UserStore.GetTwoFactor]. It carries
// the raw shared secret and the confirmation state: a secret exists in
// pending state from enrollment until the first valid code confirms it.
type TwoFactorRecord struct {
	Secret    []byte
	Confirmed bool
}

// BackupCodeHash stores the SHA-256 hash of a single recovery code.
// The plaintext is never persisted.
type BackupCodeHash [32]byte

// UserStore is the primary interface that callers must implement to
// integrate authcore with their account database. It covers credential
// lookup, account creation, lockout bookkeeping, two-factor secret
// management, and backup code storage.
//
// IncrementFailedAttempts must be an atomic store-side increment that
// returns the post-increment counter, so concurrent failures observe a
// strictly increasing sequence and exactly one of them crosses the
// lockout threshold. ConsumeBackupCode must be compare-and-delete:
// it returns true at most once per stored hash.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, a Account) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	SetLockout(ctx context.Context, id string, until time.Time) error
	ResetLockout(ctx context.Context, id string) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	GetTwoFactor(ctx context.Context, id string) (TwoFactorRecord, error)
	SetTwoFactor(ctx context.Context, id string, rec TwoFactorRecord) error
	ConfirmTwoFactor(ctx context.Context, id string) error
	ClearTwoFactor(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, hashes []BackupCodeHash) error
	ConsumeBackupCode(ctx context.Context, id string, hash BackupCodeHash) (bool, error)
}

// TokenPair is an access/refresh pair minted by a successful
// authentication or rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// LoginResult is returned by [Engine.Login]. When the account has a
// confirmed second factor, TwoFactorRequired is true and the pair is
// empty; the caller completes authentication through
// [Engine.VerifyTwoFactorStepUp].
type LoginResult struct {
	TokenPair

	AccountID         string
	TwoFactorRequired bool
}

// TwoFactorEnrollment is returned by [Engine.BeginTwoFactorEnroll].
// BackupCodes carries the plaintext recovery codes; this is the only
// time they are visible.
type TwoFactorEnrollment struct {
	Secret      string
	URI         string
	QRPNG       []byte
	BackupCodes []string
}

// AuthResult is returned by [Engine.ValidateAccess]. It contains the
// authenticated account's ID, email, and role as carried by the access
// token claims.
type AuthResult struct {
	AccountID string
	Email     string
	Role      string
}
