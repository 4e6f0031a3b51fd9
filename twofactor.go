package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luminacare/authcore/session"
)

// VerifySecondFactor checks a login-time second-factor code for the
// given method. Every verification failure collapses to ErrInvalidCode:
// wrong digits, expired codes and already-used codes are deliberately
// indistinguishable to the caller.
func (e *Engine) VerifySecondFactor(ctx context.Context, userID string, method Method, code string) error {
	if userID == "" || code == "" {
		return ErrInvalidCode
	}

	var err error
	switch method {
	case MethodTOTP:
		err = e.verifyTOTP(ctx, userID, code)
	case MethodSMS:
		err = e.verifySMS(ctx, userID, code)
	case MethodBackup:
		err = e.verifyBackupCode(ctx, userID, code)
	default:
		return ErrMethodNotSupported
	}

	if err != nil {
		e.metrics.inc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{"method": string(method)}
		})
		return err
	}

	e.metrics.inc(MetricSecondFactorSuccess)
	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, userID, "", nil, func() map[string]string {
		return map[string]string{"method": string(method)}
	})
	return nil
}

// SecondFactorMethods lists the methods userID can present at login:
// every verified credential, plus backup codes while unused ones
// remain.
func (e *Engine) SecondFactorMethods(ctx context.Context, userID string) ([]Method, error) {
	var methods []Method
	for _, method := range []Method{MethodTOTP, MethodSMS} {
		cred, err := e.store.GetCredential(ctx, userID, method)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if cred.Verified {
			methods = append(methods, method)
		}
	}

	remaining, err := e.store.UnusedBackupCodeCount(ctx, userID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if remaining > 0 {
		methods = append(methods, MethodBackup)
	}
	return methods, nil
}

// DisableSecondFactor turns two-factor off for the account after a
// password re-proof. Credential rows and any remaining backup codes
// are retained for audit; only the account flag flips.
func (e *Engine) DisableSecondFactor(ctx context.Context, userID, accountPassword string) error {
	user, err := e.directory.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(accountPassword, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventSecondFactorDisabled, false, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.directory.SetTwoFactorEnabled(ctx, userID, false); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventSecondFactorDisabled, true, userID, "", nil, nil)
	return nil
}

// activateSecondFactor marks the credential verified, flips the account
// flag and issues the first backup-code batch. Called by the TOTP and
// SMS setup confirmations; the returned plaintext codes are shown to
// the user exactly once.
func (e *Engine) activateSecondFactor(ctx context.Context, userID string, method Method) ([]string, error) {
	now := time.Now()
	if err := e.store.MarkCredentialVerified(ctx, userID, method, now.Unix()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.directory.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	codes, err := e.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return codes, nil
}
