package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist or has
	// already expired out of the store.
	ErrNotFound = errors.New("session record not found")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("session backend unavailable")
	// ErrAttemptsExceeded is returned when a login challenge has
	// consumed its failure budget.
	ErrAttemptsExceeded = errors.New("challenge attempts exceeded")
)

// Store is the persistence adapter consumed by the auth core. All calls
// honor ctx cancellation; none block indefinitely. Implementations must
// make ConsumeBackupCode a single atomic check-and-set so two
// concurrent requests presenting the same code cannot both succeed.
type Store interface {
	// Sessions. Keyed by refresh-token hash: at most one session per
	// (user, refresh token) by construction.
	CreateSession(ctx context.Context, sess *Session) error
	GetSessionByRefreshHash(ctx context.Context, refreshHash string) (*Session, error)
	UpdateSessionAccess(ctx context.Context, refreshHash, accessToken string, accessExpiresAt int64) error
	InvalidateSession(ctx context.Context, refreshHash string, revoked, expired bool) error
	DeleteSession(ctx context.Context, refreshHash string) error
	RevokeUserSessions(ctx context.Context, userID string) (int, error)

	// Second-factor credentials, one per (user, method).
	GetCredential(ctx context.Context, userID string, method Method) (*Credential, error)
	SaveCredential(ctx context.Context, cred *Credential) error
	MarkCredentialVerified(ctx context.Context, userID string, method Method, at int64) error
	TouchCredential(ctx context.Context, userID string, method Method, at int64) error

	// Backup codes. ReplaceBackupCodes atomically supersedes any prior
	// unused batch; ConsumeBackupCode marks a code used exactly once.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error)
	UnusedBackupCodeCount(ctx context.Context, userID string) (int, error)

	// Trusted devices.
	SaveTrustedDevice(ctx context.Context, device *TrustedDevice) error
	GetTrustedDevice(ctx context.Context, userID, deviceID string) (*TrustedDevice, error)
	ListTrustedDevices(ctx context.Context, userID string) ([]TrustedDevice, error)
	RevokeTrustedDevice(ctx context.Context, userID, deviceID string) error

	// Short-lived SMS verification codes, stored hashed.
	SaveSMSCode(ctx context.Context, userID, hash string, ttl time.Duration) error
	GetSMSCode(ctx context.Context, userID string) (string, error)

	// Pending login challenges.
	SaveLoginChallenge(ctx context.Context, challenge *LoginChallenge, ttl time.Duration) error
	GetLoginChallenge(ctx context.Context, id string) (*LoginChallenge, error)
	FailLoginChallenge(ctx context.Context, id string, maxAttempts int) error
	DeleteLoginChallenge(ctx context.Context, id string) (bool, error)
}
