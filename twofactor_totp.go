package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/luminacare/authcore/session"
)

// totpOpts pins the RFC 6238 parameters every standard authenticator
// app assumes: 30-second steps, 6 digits, SHA-1.
func (e *Engine) totpValidateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    30,
		Skew:      e.cfg.TwoFactor.TOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// BeginTOTPSetup generates a fresh shared secret for userID and stores
// it unverified. The returned setup holds the secret and an otpauth://
// provisioning URI; the factor stays unusable for login until
// ConfirmTOTPSetup proves the user's app produces matching codes.
func (e *Engine) BeginTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	user, err := e.directory.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.TwoFactor.TOTPIssuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	cred := &session.Credential{
		UserID:    userID,
		Method:    MethodTOTP,
		Secret:    []byte(key.Secret()),
		CreatedAt: time.Now().Unix(),
	}
	if err := e.store.SaveCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, userID, "", nil, nil)
	return &TOTPSetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// ConfirmTOTPSetup validates a code against the pending secret and, on
// success, activates the factor and returns the user's first batch of
// backup codes. A wrong code leaves the setup pending and retriable.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) ([]string, error) {
	cred, err := e.store.GetCredential(ctx, userID, MethodTOTP)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSecondFactorNotConfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	valid, err := totp.ValidateCustom(code, string(cred.Secret), time.Now(), e.totpValidateOpts())
	if err != nil || !valid {
		e.emitAudit(ctx, auditEventTOTPEnabled, false, userID, "", ErrInvalidCode, nil)
		return nil, ErrInvalidCode
	}

	codes, err := e.activateSecondFactor(ctx, userID, MethodTOTP)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, userID, "", nil, nil)
	return codes, nil
}

// verifyTOTP checks a login-time code against the verified credential.
func (e *Engine) verifyTOTP(ctx context.Context, userID, code string) error {
	cred, err := e.store.GetCredential(ctx, userID, MethodTOTP)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !cred.Verified {
		return ErrInvalidCode
	}

	valid, err := totp.ValidateCustom(code, string(cred.Secret), time.Now(), e.totpValidateOpts())
	if err != nil || !valid {
		return ErrInvalidCode
	}

	if err := e.store.TouchCredential(ctx, userID, MethodTOTP, time.Now().Unix()); err != nil {
		e.logger.Warn("credential touch failed", "user_id", userID, "error", err)
	}
	return nil
}
