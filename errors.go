package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is an exported constant or variable used by the authentication engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidOperation is an exported constant or variable used by the authentication engine.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrAccountExists is an exported constant or variable used by the authentication engine.
	ErrAccountExists = fmt.Errorf("%w: account already exists", ErrInvalidOperation)
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired or invalid")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the authentication engine.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrTwoFactorNotEnrolled is an exported constant or variable used by the authentication engine.
	ErrTwoFactorNotEnrolled = errors.New("two-factor not enrolled")
	// ErrTwoFactorAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrTwoFactorAlreadyEnabled = fmt.Errorf("%w: two-factor already enabled", ErrInvalidOperation)
	// ErrDuplicateEmail is returned by UserStore implementations on a unique-email conflict.
	ErrDuplicateEmail = errors.New("store duplicate email")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// AccountLockedError reports an active lockout window. It matches
// [ErrAccountLocked] through errors.Is so callers can branch on the
// sentinel and still read the window end when they need it.
type AccountLockedError struct {
	LockoutEnd time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockoutEnd.UTC().Format(time.RFC3339))
}

// Is describes the is operation and its observable behavior.
//
// Is may return an error when input validation, dependency calls, or security checks fail.
// Is does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RateLimitError reports a rejected request under a named policy. It
// matches [ErrRateLimited] through errors.Is; RetryAfter is the
// remaining window at rejection time.
type RateLimitError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry after %s", e.Policy, e.RetryAfter)
}

// Is describes the is operation and its observable behavior.
//
// Is may return an error when input validation, dependency calls, or security checks fail.
// Is does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
