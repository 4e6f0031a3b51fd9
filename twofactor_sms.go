package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/luminacare/authcore/internal"
	"github.com/luminacare/authcore/session"
)

// phonePattern accepts E.164 numbers only: a plus sign, a non-zero
// country digit, 6 to 14 further digits.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// BeginSMSSetup registers phoneNumber as userID's SMS factor and
// dispatches the first verification code. The credential stays
// unverified until ConfirmSMSSetup.
func (e *Engine) BeginSMSSetup(ctx context.Context, userID, phoneNumber string) error {
	if !phonePattern.MatchString(phoneNumber) {
		return fmt.Errorf("%w: phone number must be E.164", ErrValidation)
	}
	if e.notifier == nil {
		return ErrNotifierUnavailable
	}
	if _, err := e.directory.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	cred := &session.Credential{
		UserID:      userID,
		Method:      MethodSMS,
		PhoneNumber: phoneNumber,
		CreatedAt:   time.Now().Unix(),
	}
	if err := e.store.SaveCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.dispatchSMSCode(ctx, userID, phoneNumber); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventSMSSetupRequested, true, userID, "", nil, nil)
	return nil
}

// ConfirmSMSSetup validates the dispatched code and activates the
// factor, returning the user's first batch of backup codes.
func (e *Engine) ConfirmSMSSetup(ctx context.Context, userID, code string) ([]string, error) {
	if _, err := e.store.GetCredential(ctx, userID, MethodSMS); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSecondFactorNotConfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.compareSMSCode(ctx, userID, code); err != nil {
		e.emitAudit(ctx, auditEventSMSEnabled, false, userID, "", err, nil)
		return nil, err
	}

	codes, err := e.activateSecondFactor(ctx, userID, MethodSMS)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventSMSEnabled, true, userID, "", nil, nil)
	return codes, nil
}

// RequestSMSCode dispatches a fresh login code to userID's verified
// phone number. Callers invoke it after Login reports an SMS-capable
// challenge.
func (e *Engine) RequestSMSCode(ctx context.Context, userID string) error {
	cred, err := e.store.GetCredential(ctx, userID, MethodSMS)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSecondFactorNotConfigured
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !cred.Verified {
		return ErrSecondFactorNotConfigured
	}
	return e.dispatchSMSCode(ctx, userID, cred.PhoneNumber)
}

// dispatchSMSCode stores the hash of a fresh code under the short TTL,
// then hands the plaintext to the notifier. The store write comes
// first: a code the user receives must always be verifiable.
func (e *Engine) dispatchSMSCode(ctx context.Context, userID, phoneNumber string) error {
	if e.notifier == nil {
		return ErrNotifierUnavailable
	}

	code, err := internal.NewOTP(e.cfg.TwoFactor.SMSCodeDigits)
	if err != nil {
		return fmt.Errorf("generate sms code: %w", err)
	}
	if err := e.store.SaveSMSCode(ctx, userID, internal.HashToken(code), e.cfg.TwoFactor.SMSCodeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.notifier.SendSMSCode(ctx, phoneNumber, code); err != nil {
		return fmt.Errorf("%w: %v", ErrNotifierUnavailable, err)
	}
	return nil
}

// compareSMSCode checks code against the stored hash. Expired and
// wrong codes are indistinguishable.
func (e *Engine) compareSMSCode(ctx context.Context, userID, code string) error {
	storedHash, err := e.store.GetSMSCode(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(internal.HashToken(code))) != 1 {
		return ErrInvalidCode
	}
	return nil
}

// verifySMS checks a login-time code against the verified credential.
func (e *Engine) verifySMS(ctx context.Context, userID, code string) error {
	cred, err := e.store.GetCredential(ctx, userID, MethodSMS)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !cred.Verified {
		return ErrInvalidCode
	}

	if err := e.compareSMSCode(ctx, userID, code); err != nil {
		return err
	}

	if err := e.store.TouchCredential(ctx, userID, MethodSMS, time.Now().Unix()); err != nil {
		e.logger.Warn("credential touch failed", "user_id", userID, "error", err)
	}
	return nil
}
