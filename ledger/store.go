package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is an exported constant or variable used by the authentication engine.
var ErrNotFound = errors.New("ledger: token not found")

// ErrExpired is an exported constant or variable used by the authentication engine.
var ErrExpired = errors.New("ledger: token expired")

// ErrRevoked is an exported constant or variable used by the authentication engine.
var ErrRevoked = errors.New("ledger: token revoked")

// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
var ErrStoreUnavailable = errors.New("ledger: store unavailable")

// ErrCorrupt is returned when a stored token row cannot be decoded.
var ErrCorrupt = errors.New("ledger: token row corrupt")

// Token is one row of the rotation ledger. Value carries the opaque
// client-held string only on the issuing side; rows read back from
// storage leave it empty.
type Token struct {
	Value      string
	AccountID  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  time.Time
	ReplacedBy string
}

// Active reports whether the token is usable at the given instant.
func (t Token) Active(now time.Time) bool {
	return t.RevokedAt.IsZero() && now.Before(t.ExpiresAt)
}

// Store is the persistence contract for the rotation ledger. Rotate must
// be atomic: revoke(old) and create(successor) either both happen or
// neither does, and concurrent rotations of one value admit exactly one
// winner.
type Store interface {
	Create(ctx context.Context, t Token) error
	Get(ctx context.Context, value string) (Token, error)
	Rotate(ctx context.Context, oldValue, newValue string, expiresAt time.Time) (Token, error)
	Revoke(ctx context.Context, value string) error
	RevokeAll(ctx context.Context, accountID string) (int, error)
}
