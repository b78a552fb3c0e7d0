package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"
)

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Accounts with a confirmed second factor receive a LoginResult with
// TwoFactorRequired set and no tokens; the caller completes the login
// through VerifyTwoFactorStepUp.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	if err := e.checkLoginRate(ctx, email); err != nil {
		return nil, err
	}

	if plainPassword == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "empty_password",
			}
		})
		return nil, ErrInvalidCredentials
	}

	account, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		// Absence is indistinguishable from a wrong password at the API
		// surface; only the audit trail records the difference.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if account.Locked(now) {
		e.metricInc(MetricLoginFailure)
		lockErr := &AccountLockedError{LockoutEnd: account.LockoutEnd}
		e.emitAudit(ctx, auditEventLoginLocked, false, account.ID, lockErr, func() map[string]string {
			return map[string]string{
				"identifier":  email,
				"lockout_end": account.LockoutEnd.UTC().Format(time.RFC3339),
			}
		})
		return nil, lockErr
	}

	if !account.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "account_inactive",
			}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(plainPassword, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.recordFailedAttempt(ctx, account, email)
	}

	if err := e.users.ResetLockout(ctx, account.ID); err != nil {
		return nil, err
	}
	if err := e.users.SetLastLogin(ctx, account.ID, now); err != nil {
		log.Print("authcore: last login update failed")
	}

	e.maybeUpgradeHash(ctx, account, plainPassword)
	plainPassword = ""

	if account.TwoFactorEnabled {
		record, err := e.users.GetTwoFactor(ctx, account.ID)
		if err != nil && !errors.Is(err, ErrTwoFactorNotEnrolled) {
			// A second factor the store can't read must block the login,
			// not wave it through.
			return nil, err
		}
		if err == nil && record.Confirmed {
			e.metricInc(MetricTwoFactorRequired)
			e.emitAudit(ctx, auditEventLoginSecondFactor, true, account.ID, nil, func() map[string]string {
				return map[string]string{
					"identifier": email,
				}
			})
			return &LoginResult{
				AccountID:         account.ID,
				TwoFactorRequired: true,
			}, nil
		}
	}

	pair, err := e.issueTokens(ctx, account)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, err, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "issue_tokens_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": email,
		}
	})
	e.emitEvent(EventLoggedIn, account.ID, account.Email)

	return &LoginResult{
		TokenPair: *pair,
		AccountID: account.ID,
	}, nil
}

// recordFailedAttempt increments the failure counter atomically and arms
// the lockout when the threshold is crossed by this attempt.
func (e *Engine) recordFailedAttempt(ctx context.Context, account Account, email string) error {
	count, err := e.users.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		return err
	}

	if count >= e.config.Login.MaxFailedAttempts {
		lockoutEnd := time.Now().Add(e.config.Login.LockoutDuration)
		if err := e.users.SetLockout(ctx, account.ID, lockoutEnd); err != nil {
			return err
		}

		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricLoginLockout)
		lockErr := &AccountLockedError{LockoutEnd: lockoutEnd}
		e.emitAudit(ctx, auditEventLoginLocked, false, account.ID, lockErr, func() map[string]string {
			return map[string]string{
				"identifier":      email,
				"failed_attempts": strconv.Itoa(count),
				"lockout_end":     lockoutEnd.UTC().Format(time.RFC3339),
			}
		})
		return lockErr
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier":      email,
			"reason":          "password_mismatch",
			"failed_attempts": strconv.Itoa(count),
		}
	})
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, account Account, plainPassword string) {
	if !e.config.Login.UpgradeOnLogin {
		return
	}
	needsUpgrade, err := e.passwordHash.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}

	upgraded, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	// Rehash update is best-effort and must not block successful login.
	if err := e.users.UpdatePasswordHash(ctx, account.ID, upgraded); err != nil {
		log.Print("authcore: password hash upgrade update failed")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
