package authcore

import "errors"

var (
	// ErrValidation is returned for malformed input: bad phone numbers,
	// oversized device names, unknown enum values on internal paths.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidUserData is returned by token issuance when the user
	// record is missing id, email, or role.
	ErrInvalidUserData = errors.New("invalid user data")
	// ErrInvalidCredentials is the generic identifier/password failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidCode is the generic second-factor failure. It covers
	// wrong digits, expired codes, and already-used codes alike; the
	// caller must never learn which.
	ErrInvalidCode = errors.New("invalid code")
	// ErrSessionInvalid is returned when a refresh token matches no
	// usable session (revoked, inactive, or unknown).
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired is returned when the matched session's refresh
	// window has lapsed. Distinct from ErrSessionInvalid so callers can
	// choose re-login messaging.
	ErrSessionExpired = errors.New("session expired")
	// ErrTokenExpired is returned for a well-signed access token past
	// its lifetime; callers should attempt a refresh.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed or badly signed tokens;
	// callers should re-authenticate.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrDeviceLimitReached is returned when a user already holds the
	// maximum number of non-revoked trusted devices. Devices are never
	// silently evicted; one must be revoked explicitly first.
	ErrDeviceLimitReached = errors.New("trusted device limit reached")
	// ErrMethodNotSupported is returned for an unknown second-factor
	// method discriminator.
	ErrMethodNotSupported = errors.New("second-factor method not supported")
	// ErrPersistenceDegraded signals that the cryptographic operation
	// succeeded but its bookkeeping write failed. Non-fatal: token
	// issuance still returns the minted pair alongside this error.
	ErrPersistenceDegraded = errors.New("persistence degraded")
	// ErrChallengeInvalid is returned when a login challenge is
	// unknown, expired, or already consumed.
	ErrChallengeInvalid = errors.New("login challenge invalid")
	// ErrChallengeAttemptsExceeded is returned once a challenge has
	// burned its failure budget and been destroyed.
	ErrChallengeAttemptsExceeded = errors.New("login challenge attempts exceeded")
	// ErrSecondFactorRequired is returned by login paths that cannot
	// complete without a second factor.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrSecondFactorNotConfigured is returned when a flow needs an
	// active factor the user has not finished setting up.
	ErrSecondFactorNotConfigured = errors.New("second factor not configured")
	// ErrUserNotFound is returned when the directory has no record for
	// the given id.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountUnverified is returned for accounts still pending
	// verification.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountSuspended is returned for suspended accounts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountBanned is returned for banned accounts.
	ErrAccountBanned = errors.New("account banned")
	// ErrAccountDeleted is returned for deleted accounts.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrStoreUnavailable wraps fatal persistence failures on paths
	// where the store is the source of truth (refresh validation).
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotifierUnavailable is returned when the SMS dispatch
	// collaborator fails.
	ErrNotifierUnavailable = errors.New("notification dispatch failed")
	// ErrEngineNotReady is returned when a dependency was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
)
