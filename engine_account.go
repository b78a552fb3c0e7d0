package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RegisterRequest defines a public type used by authcore APIs.
//
// RegisterRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegisterRequest struct {
	Email    string
	Password string
	Role     string
}

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrInvalidOperation, func() map[string]string {
			return map[string]string{
				"reason": "empty_email",
			}
		})
		return nil, ErrInvalidOperation
	}
	if req.Password == "" {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "empty_password",
			}
		})
		return nil, ErrPasswordPolicy
	}

	role := req.Role
	if role == "" {
		role = "user"
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "hash_policy",
			}
		})
		return nil, ErrPasswordPolicy
	}

	created, err := e.users.Create(ctx, Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, func() map[string]string {
				return map[string]string{
					"identifier": email,
				}
			})
			return nil, ErrAccountExists
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     "store_create_failed",
			}
		})
		return nil, err
	}

	req.Password = ""
	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, created.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"role":       created.Role,
		}
	})
	e.emitEvent(EventRegistered, created.ID, created.Email)

	return &created, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A successful change revokes every outstanding refresh token for the
// account.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || oldPassword == "" || newPassword == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return ErrPasswordPolicy
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, ErrUserNotFound, func() map[string]string {
				return map[string]string{
					"reason": "user_not_found",
				}
			})
			return ErrUserNotFound
		}
		return err
	}

	oldOK, err := e.passwordHash.Verify(oldPassword, account.PasswordHash)
	if err != nil || !oldOK {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, accountID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	samePassword, err := e.passwordHash.Verify(newPassword, account.PasswordHash)
	if err == nil && samePassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, accountID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "hash_policy",
			}
		})
		return ErrPasswordPolicy
	}

	if err := e.users.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, err, func() map[string]string {
			return map[string]string{
				"reason": "update_hash_failed",
			}
		})
		return err
	}

	if _, err := e.tokens.RevokeAll(ctx, accountID); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, err, func() map[string]string {
			return map[string]string{
				"reason": "revoke_all_failed",
			}
		})
		return err
	}

	oldPassword = ""
	newPassword = ""
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, nil, nil)

	return nil
}

// Lock describes the lock operation and its observable behavior.
//
// Lock may return an error when input validation, dependency calls, or security checks fail.
// Lock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Lock arms a lockout window for the given duration, exactly as if the
// account had crossed the failed-attempt threshold; it is the
// administrative counterpart of Unlock. Outstanding refresh tokens keep
// rotating; revoke them separately with RevokeAll when the lock is a
// compromise response.
func (e *Engine) Lock(ctx context.Context, accountID string, d time.Duration) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if d <= 0 {
		return ErrInvalidOperation
	}

	if _, err := e.users.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	lockoutEnd := time.Now().Add(d)
	if err := e.users.SetLockout(ctx, accountID, lockoutEnd); err != nil {
		return err
	}

	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, true, accountID, nil, func() map[string]string {
		return map[string]string{
			"lockout_end": lockoutEnd.UTC().Format(time.RFC3339),
		}
	})
	return nil
}

// Unlock describes the unlock operation and its observable behavior.
//
// Unlock may return an error when input validation, dependency calls, or security checks fail.
// Unlock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Unlock clears the lockout window and failure counter ahead of its
// natural expiry; it is an administrative override.
func (e *Engine) Unlock(ctx context.Context, accountID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	if _, err := e.users.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := e.users.ResetLockout(ctx, accountID); err != nil {
		return err
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, nil, nil)
	return nil
}
