package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shahdco/authcore/internal"
	"github.com/shahdco/authcore/ledger"
)

// IssueTokens describes the issuetokens operation and its observable behavior.
//
// IssueTokens may return an error when input validation, dependency calls, or security checks fail.
// IssueTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Every outstanding refresh token for the account is revoked before the
// new pair is minted.
func (e *Engine) IssueTokens(ctx context.Context, accountID string) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !account.Active {
		return nil, ErrUserNotFound
	}

	pair, err := e.issueTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventRevokeAll, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"reason": "issue_tokens",
		}
	})
	return pair, nil
}

// Rotate describes the rotate operation and its observable behavior.
//
// Rotate may return an error when input validation, dependency calls, or security checks fail.
// Rotate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Unknown, revoked, and expired tokens are indistinguishable at the API
// surface: all three fail with ErrTokenExpired. Concurrent rotations of
// one token value admit exactly one winner.
func (e *Engine) Rotate(ctx context.Context, refreshValue string) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	current, err := e.tokens.Get(ctx, refreshValue)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrCorrupt) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrTokenExpired, func() map[string]string {
				return map[string]string{
					"reason": "token_not_found",
				}
			})
			return nil, ErrTokenExpired
		}
		return nil, err
	}

	now := time.Now()
	if !current.Active(now) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, current.AccountID, ErrTokenExpired, func() map[string]string {
			reason := "token_expired"
			if !current.RevokedAt.IsZero() {
				reason = "token_revoked"
			}
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, ErrTokenExpired
	}

	account, err := e.users.GetByID(ctx, current.AccountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, current.AccountID, ErrUserNotFound, func() map[string]string {
				return map[string]string{
					"reason": "owner_not_found",
				}
			})
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !account.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, account.ID, ErrUserNotFound, func() map[string]string {
			return map[string]string{
				"reason": "owner_inactive",
			}
		})
		return nil, ErrUserNotFound
	}

	nextValue, err := internal.NewRefreshValue()
	if err != nil {
		return nil, err
	}

	next, err := e.tokens.Rotate(ctx, refreshValue, nextValue, now.Add(e.config.Refresh.TTL))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound),
			errors.Is(err, ledger.ErrExpired),
			errors.Is(err, ledger.ErrRevoked),
			errors.Is(err, ledger.ErrCorrupt):
			// Losers of a rotation race land here: the row was revoked
			// between Get and Rotate.
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, account.ID, ErrTokenExpired, func() map[string]string {
				return map[string]string{
					"reason": "rotation_lost",
				}
			})
			return nil, ErrTokenExpired
		default:
			return nil, err
		}
	}

	access, expiresAt, err := e.jwtManager.CreateAccess(account.ID, account.Email, account.Role)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, account.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, account.ID, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: next.Value,
		ExpiresAt:    expiresAt,
	}, nil
}

// RevokeAll describes the revokeall operation and its observable behavior.
//
// RevokeAll may return an error when input validation, dependency calls, or security checks fail.
// RevokeAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeAll(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.tokens.RevokeAll(ctx, accountID)
	if err == nil {
		e.metricInc(MetricRevokeAll)
	}
	e.emitAudit(ctx, auditEventRevokeAll, err == nil, accountID, err, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})
	return revoked, err
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Revoking a token that is already revoked or gone is not an error;
// logout is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshValue string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	accountID := ""
	email := ""
	if current, err := e.tokens.Get(ctx, refreshValue); err == nil {
		accountID = current.AccountID
		if account, err := e.users.GetByID(ctx, current.AccountID); err == nil {
			email = account.Email
		}
	}

	err := e.tokens.Revoke(ctx, refreshValue)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) && !errors.Is(err, ledger.ErrRevoked) {
		e.emitAudit(ctx, auditEventLogoutSession, false, accountID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, accountID, nil, nil)
	if accountID != "" {
		e.emitEvent(EventLoggedOut, accountID, email)
	}
	return nil
}
