package authcore

import (
	"context"
	"errors"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shahdco/authcore/internal"
)

// BeginTwoFactorEnroll describes the begintwofactorenroll operation and its observable behavior.
//
// BeginTwoFactorEnroll may return an error when input validation, dependency calls, or security checks fail.
// BeginTwoFactorEnroll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The returned enrollment carries the base32 secret, the otpauth URI, a
// QR code PNG, and the plaintext backup codes. The secret stays pending
// until ConfirmTwoFactorEnroll observes a valid code; re-running
// enrollment before confirmation replaces the pending secret and codes.
func (e *Engine) BeginTwoFactorEnroll(ctx context.Context, accountID string) (*TwoFactorEnrollment, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if account.TwoFactorEnabled {
		record, err := e.users.GetTwoFactor(ctx, accountID)
		if err != nil && !errors.Is(err, ErrTwoFactorNotEnrolled) {
			return nil, err
		}
		if err == nil && record.Confirmed {
			return nil, ErrTwoFactorAlreadyEnabled
		}
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, e.config.TOTP.BackupCodeCount)
	hashes := make([]BackupCodeHash, 0, e.config.TOTP.BackupCodeCount)
	for i := 0; i < e.config.TOTP.BackupCodeCount; i++ {
		code, err := internal.NewBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, internal.HashBackupCode(code))
	}

	if err := e.users.SetTwoFactor(ctx, accountID, TwoFactorRecord{Secret: secret}); err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, err
	}

	uri := e.totp.ProvisionURI(secretBase32, account.Email)
	png, err := qrcode.Encode(uri, qrcode.Medium, e.config.TOTP.QRSize)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorEnrollStarted, true, accountID, nil, nil)

	return &TwoFactorEnrollment{
		Secret:      secretBase32,
		URI:         uri,
		QRPNG:       png,
		BackupCodes: codes,
	}, nil
}

// ConfirmTwoFactorEnroll describes the confirmtwofactorenroll operation and its observable behavior.
//
// ConfirmTwoFactorEnroll may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTwoFactorEnroll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A wrong code returns (false, nil) and leaves the pending state
// untouched; the caller may retry with the next code.
func (e *Engine) ConfirmTwoFactorEnroll(ctx context.Context, accountID, code string) (bool, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return false, ErrEngineNotReady
	}

	record, err := e.users.GetTwoFactor(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrTwoFactorNotEnrolled) || errors.Is(err, ErrUserNotFound) {
			return false, ErrTwoFactorNotEnrolled
		}
		return false, err
	}
	if record.Confirmed {
		return false, ErrTwoFactorAlreadyEnabled
	}

	ok, _, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := e.users.ConfirmTwoFactor(ctx, accountID); err != nil {
		return false, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, accountID, nil, nil)
	return true, nil
}

// VerifyTwoFactorStepUp describes the verifytwofactorstepup operation and its observable behavior.
//
// VerifyTwoFactorStepUp may return an error when input validation, dependency calls, or security checks fail.
// VerifyTwoFactorStepUp does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Every failure mode collapses to ErrUnauthorized: the step-up surface
// does not reveal whether the account exists, is enrolled, or which
// factor was wrong.
func (e *Engine) VerifyTwoFactorStepUp(ctx context.Context, email, code string, useBackupCode bool) (*LoginResult, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	fail := func(accountID string) (*LoginResult, error) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorStepUpFailure, false, accountID, ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"identifier": normalizeEmail(email),
			}
		})
		return nil, ErrUnauthorized
	}

	account, err := e.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fail("")
	}
	if !account.Active || account.Locked(time.Now()) {
		return fail(account.ID)
	}

	record, err := e.users.GetTwoFactor(ctx, account.ID)
	if err != nil || !record.Confirmed {
		return fail(account.ID)
	}

	if useBackupCode {
		consumed, err := e.users.ConsumeBackupCode(ctx, account.ID, internal.HashBackupCode(code))
		if err != nil || !consumed {
			e.metricInc(MetricBackupCodeFailed)
			e.emitAudit(ctx, auditEventBackupCodeFailed, false, account.ID, ErrUnauthorized, nil)
			return fail(account.ID)
		}
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, nil, nil)
	} else {
		ok, _, err := e.totp.VerifyCode(record.Secret, code, time.Now())
		if err != nil || !ok {
			return fail(account.ID)
		}
	}

	pair, err := e.issueTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventTwoFactorStepUpSuccess, true, account.ID, nil, nil)
	e.emitEvent(EventLoggedIn, account.ID, account.Email)

	return &LoginResult{
		TokenPair: *pair,
		AccountID: account.ID,
	}, nil
}

// DisableTwoFactor describes the disabletwofactor operation and its observable behavior.
//
// DisableTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// DisableTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Disabling requires the account password: a stolen session alone must
// not be enough to strip the second factor.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, plainPassword string) error {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	ok, err := e.passwordHash.Verify(plainPassword, account.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, accountID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if !account.TwoFactorEnabled {
		return ErrTwoFactorNotEnrolled
	}

	if err := e.users.ClearTwoFactor(ctx, accountID); err != nil {
		return err
	}
	if err := e.users.ReplaceBackupCodes(ctx, accountID, nil); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, accountID, nil, nil)
	return nil
}
