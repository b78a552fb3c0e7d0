package authcore

import (
	"context"
	"time"

	"github.com/shahdco/authcore/internal"
	"github.com/shahdco/authcore/jwt"
	"github.com/shahdco/authcore/ledger"
	"github.com/shahdco/authcore/password"
	"github.com/shahdco/authcore/rate"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	users        UserStore
	tokens       ledger.Store
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	events       *eventDispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	totp         *totpManager
	jwtManager   *jwt.Manager
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.events != nil {
		e.events.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// EventsDropped describes the eventsdropped operation and its observable behavior.
//
// EventsDropped may return an error when input validation, dependency calls, or security checks fail.
// EventsDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitEvent(eventType, accountID, email string) {
	if e == nil || e.events == nil {
		return
	}
	e.events.Emit(Event{
		Type:      eventType,
		AccountID: accountID,
		Email:     email,
		Timestamp: time.Now().UTC(),
	})
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &AuthResult{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
	}, nil
}

// issueTokens revokes every live refresh token for the account and mints
// a fresh pair: login and step-up supersede all prior sessions.
func (e *Engine) issueTokens(ctx context.Context, account Account) (*TokenPair, error) {
	if _, err := e.tokens.RevokeAll(ctx, account.ID); err != nil {
		return nil, err
	}

	value, err := internal.NewRefreshValue()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	token := ledger.Token{
		Value:     value,
		AccountID: account.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Refresh.TTL),
	}
	if err := e.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	access, expiresAt, err := e.jwtManager.CreateAccess(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: value,
		ExpiresAt:    expiresAt,
	}, nil
}

// checkLoginRate applies the configured login window keyed by client
// identity. Returns a *RateLimitError when the window is exhausted.
func (e *Engine) checkLoginRate(ctx context.Context, email string) error {
	if e.rateLimiter == nil || !e.config.RateLimit.Enabled {
		return nil
	}

	identity := clientIdentityFromContext(ctx)
	decision, err := e.rateLimiter.Allow(ctx, e.config.RateLimit.Login, identity)
	if err != nil {
		// Limiter backend failure fails closed: a broken brake must not
		// become an open gate for credential guessing.
		return ErrStoreUnavailable
	}
	if !decision.Allowed {
		e.metricInc(MetricLoginRateLimited)
		rateErr := &RateLimitError{
			Policy:     e.config.RateLimit.Login.Name,
			RetryAfter: decision.RetryAfter,
		}
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", rateErr, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"identity":   identity,
			}
		})
		e.emitRateLimit(ctx, "login", func() map[string]string {
			return map[string]string{
				"identity": identity,
			}
		})
		return rateErr
	}

	return nil
}
