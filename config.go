package authcore

import (
	"errors"
	"strings"
	"time"

	"github.com/shahdco/authcore/rate"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT       JWTConfig
	Login     LoginConfig
	Refresh   RefreshConfig
	TOTP      TOTPConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Events    EventsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls the failed-attempt lockout state machine.
//
// A lockout is a credential-guessing brake, not a session compromise
// signal: entering a lockout does not revoke outstanding refresh tokens,
// and existing sessions keep rotating through the ledger.
type LoginConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	UpgradeOnLogin    bool
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig defines a public type used by authcore APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	TTL       time.Duration
	Retention time.Duration
}

// TOTPConfig defines a public type used by authcore APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Algorithm       string
	Skew            int
	BackupCodeCount int
	QRSize          int
}

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RateLimitConfig defines a public type used by authcore APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Enabled bool
	Login   rate.Policy
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// EventsConfig defines a public type used by authcore APIs.
//
// EventsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig returns derived values or handles for continued use when successful.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
		},
		Login: LoginConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
			UpgradeOnLogin:    true,
		},
		Refresh: RefreshConfig{
			TTL:       7 * 24 * time.Hour,
			Retention: 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:          "authcore",
			Digits:          6,
			Period:          30,
			Algorithm:       "SHA1",
			Skew:            1,
			BackupCodeCount: 10,
			QRSize:          256,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Login:   rate.PolicyAuth,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}

	// Login
	if c.Login.MaxFailedAttempts <= 0 {
		return errors.New("Login MaxFailedAttempts must be > 0")
	}
	if c.Login.LockoutDuration <= 0 {
		return errors.New("Login LockoutDuration must be > 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.QRSize < 64 {
		return errors.New("TOTP QRSize must be >= 64")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		if c.RateLimit.Login.Name == "" {
			return errors.New("RateLimit Login policy name is required")
		}
		if c.RateLimit.Login.Limit <= 0 {
			return errors.New("RateLimit Login policy limit must be > 0")
		}
		if c.RateLimit.Login.Window <= 0 {
			return errors.New("RateLimit Login policy window must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	// Events
	if c.Events.Enabled {
		if c.Events.BufferSize <= 0 {
			return errors.New("Events BufferSize must be > 0 when events are enabled")
		}
	}

	return nil
}
