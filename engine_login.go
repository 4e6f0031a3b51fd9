package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luminacare/authcore/internal"
	"github.com/luminacare/authcore/session"
)

// Login authenticates identifier/password and either issues a token
// pair or opens a second-factor challenge.
//
// With two-factor enabled, a trusted device fingerprint on ctx (see
// WithDeviceID) bypasses the challenge. Otherwise the result carries
// SecondFactorRequired with a challenge id and the methods the user
// can present to ConfirmLogin.
//
// A nil error or ErrPersistenceDegraded both mean the returned tokens
// are usable; the latter flags that session bookkeeping failed.
func (e *Engine) Login(ctx context.Context, identifier, accountPassword string) (*LoginResult, error) {
	if identifier == "" || accountPassword == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := e.directory.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.loginFailed(ctx, "", ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(accountPassword, user.PasswordHash)
	if err != nil || !ok {
		e.loginFailed(ctx, user.ID, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.loginFailed(ctx, user.ID, statusErr)
		return nil, statusErr
	}

	if user.TwoFactorEnabled {
		deviceID := deviceIDFromContext(ctx)
		if e.isDeviceTrusted(ctx, user.ID, deviceID) {
			e.metrics.inc(MetricDeviceBypass)
			e.emitAudit(ctx, auditEventDeviceBypass, true, user.ID, "", nil, func() map[string]string {
				return map[string]string{"device_id": deviceID}
			})
		} else {
			return e.openChallenge(ctx, user, deviceID)
		}
	}

	return e.completeLogin(ctx, user)
}

// ConfirmLogin resolves a pending challenge with a second-factor code
// and issues the token pair. rememberDevice registers the device
// fingerprint captured at Login as trusted; a full device roster makes
// that registration fail quietly rather than failing the login.
func (e *Engine) ConfirmLogin(ctx context.Context, challengeID string, method Method, code string, rememberDevice bool) (*LoginResult, error) {
	challenge, err := e.store.GetLoginChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrChallengeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now()
	if challenge.ExpiresAt <= now.Unix() {
		_, _ = e.store.DeleteLoginChallenge(ctx, challengeID)
		return nil, ErrChallengeInvalid
	}

	if err := e.VerifySecondFactor(ctx, challenge.UserID, method, code); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			if failErr := e.store.FailLoginChallenge(ctx, challengeID, e.cfg.TwoFactor.ChallengeMaxAttempts); failErr != nil {
				if errors.Is(failErr, session.ErrAttemptsExceeded) {
					return nil, ErrChallengeAttemptsExceeded
				}
				if errors.Is(failErr, session.ErrNotFound) {
					return nil, ErrChallengeInvalid
				}
			}
		}
		return nil, err
	}

	// Exactly one confirmation may consume the challenge; a concurrent
	// winner leaves nothing to delete.
	deleted, err := e.store.DeleteLoginChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !deleted {
		return nil, ErrChallengeInvalid
	}

	user, err := e.directory.GetByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.loginFailed(ctx, user.ID, statusErr)
		return nil, statusErr
	}

	if rememberDevice && challenge.DeviceID != "" {
		if err := e.AddTrustedDevice(ctx, user.ID, challenge.DeviceID, challenge.DeviceName); err != nil {
			e.logger.Warn("device trust registration failed",
				"user_id", user.ID, "device_id", challenge.DeviceID, "error", err)
		}
	}

	return e.completeLogin(ctx, user)
}

// Logout revokes the session behind refreshToken. Idempotent.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", nil, nil)
	return nil
}

// LogoutAll revokes every session userID holds and reports the count.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := e.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	e.emitAudit(ctx, auditEventTokenRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": fmt.Sprintf("%d", n)}
	})
	return n, nil
}

func (e *Engine) openChallenge(ctx context.Context, user UserRecord, deviceID string) (*LoginResult, error) {
	methods, err := e.SecondFactorMethods(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		// The account flag is on but no factor ever reached ACTIVE: a
		// directory inconsistency, surfaced rather than bypassed.
		return nil, ErrSecondFactorNotConfigured
	}

	deviceName := userAgentFromContext(ctx)
	if max := e.cfg.TrustedDevice.MaxDeviceNameLength; len(deviceName) > max {
		deviceName = deviceName[:max]
	}

	challenge := &session.LoginChallenge{
		ID:         internal.NewID(),
		UserID:     user.ID,
		ExpiresAt:  time.Now().Add(e.cfg.TwoFactor.ChallengeTTL).Unix(),
		DeviceID:   deviceID,
		DeviceName: deviceName,
	}
	if err := e.store.SaveLoginChallenge(ctx, challenge, e.cfg.TwoFactor.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.inc(MetricLoginChallengeIssued)
	e.emitAudit(ctx, auditEventLoginChallenge, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"challenge_id": challenge.ID}
	})
	return &LoginResult{
		SecondFactorRequired: true,
		ChallengeID:          challenge.ID,
		Methods:              methods,
	}, nil
}

func (e *Engine) completeLogin(ctx context.Context, user UserRecord) (*LoginResult, error) {
	pair, err := e.tokens.Issue(ctx, user)
	if err != nil && !errors.Is(err, ErrPersistenceDegraded) {
		e.loginFailed(ctx, user.ID, err)
		return nil, err
	}

	e.metrics.inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", err, nil)
	return &LoginResult{Tokens: pair}, err
}

func (e *Engine) loginFailed(ctx context.Context, userID string, cause error) {
	e.metrics.inc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", cause, nil)
}
