package authcore

import (
	"errors"
	"time"

	"github.com/luminacare/authcore/password"
	"github.com/luminacare/authcore/token"
)

// Config is the engine's full configuration. Zero values are filled
// from DefaultConfig by the Builder; Validate runs once at Build time.
type Config struct {
	Token         TokenConfig
	TwoFactor     TwoFactorConfig
	TrustedDevice TrustedDeviceConfig
	Session       SessionConfig
	Password      password.Config
	Roles         RoleConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Cookie        CookieConfig
}

// TokenConfig configures the credential signer. Access and refresh
// lifetimes are independent; both become absolute expiry timestamps at
// issuance, never sliding windows.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod token.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// TwoFactorConfig configures the second-factor engine.
type TwoFactorConfig struct {
	// TOTPIssuer is the issuer label shown in authenticator apps.
	TOTPIssuer string
	// TOTPSkew is the tolerance window in 30-second steps on either
	// side of now.
	TOTPSkew uint
	// SMSCodeTTL bounds how long a dispatched code stays verifiable.
	SMSCodeTTL time.Duration
	// SMSCodeDigits is the dispatched code length.
	SMSCodeDigits int
	// BackupCodeCount is the fixed batch size; a new batch supersedes
	// any prior unused batch.
	BackupCodeCount int
	// BackupCodeLength is the code length in uppercase alphanumerics.
	BackupCodeLength int
	// ChallengeTTL bounds a pending login challenge.
	ChallengeTTL time.Duration
	// ChallengeMaxAttempts is the failure budget per challenge.
	ChallengeMaxAttempts int
}

// TrustedDeviceConfig configures second-factor bypass devices.
type TrustedDeviceConfig struct {
	// MaxPerUser caps non-revoked devices. The 6th add fails; nothing
	// is evicted silently.
	MaxPerUser int
	// TTL is the absolute trust lifetime from registration.
	TTL time.Duration
	// MaxDeviceIDLength and MaxDeviceNameLength bound the
	// client-supplied fingerprint and label, which are untrusted input.
	MaxDeviceIDLength   int
	MaxDeviceNameLength int
}

// SessionConfig configures the reference Redis store.
type SessionConfig struct {
	RedisPrefix string
}

// RoleConfig configures the permission resolver cache.
type RoleConfig struct {
	// CacheTTL is how long a built resolver snapshot is served before
	// a wholesale rebuild. Zero disables rebuilds.
	CacheTTL time.Duration
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking the hot path when
	// the buffer is saturated.
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// CookieConfig shapes the collaborator-facing cookie contract: both
// credentials as same-site-strict http-only cookies with independent
// max-ages.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
}

// DefaultConfig returns the documented defaults: 15 minute access
// tokens, 30 day refresh tokens, 1 minute SMS codes, batches of ten
// 8-character backup codes, and a 5-device trust cap.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: token.MethodHS256,
			Issuer:        "authcore",
		},
		TwoFactor: TwoFactorConfig{
			TOTPIssuer:           "LuminaCare",
			TOTPSkew:             1,
			SMSCodeTTL:           time.Minute,
			SMSCodeDigits:        6,
			BackupCodeCount:      10,
			BackupCodeLength:     8,
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
		},
		TrustedDevice: TrustedDeviceConfig{
			MaxPerUser:          5,
			TTL:                 30 * 24 * time.Hour,
			MaxDeviceIDLength:   128,
			MaxDeviceNameLength: 64,
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Roles: RoleConfig{
			CacheTTL: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Cookie: CookieConfig{
			AccessName:  "ac_access",
			RefreshName: "ac_refresh",
			Path:        "/",
			Secure:      true,
		},
	}
}

// Validate rejects configurations that would produce unusable or
// insecure engines.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.TwoFactor.SMSCodeTTL <= 0 || c.TwoFactor.SMSCodeTTL > 10*time.Minute {
		return errors.New("sms code TTL out of range")
	}
	if c.TwoFactor.SMSCodeDigits < 4 || c.TwoFactor.SMSCodeDigits > 10 {
		return errors.New("sms code digits out of range")
	}
	if c.TwoFactor.BackupCodeCount < 1 || c.TwoFactor.BackupCodeCount > 64 {
		return errors.New("backup code count out of range")
	}
	if c.TwoFactor.BackupCodeLength < 8 || c.TwoFactor.BackupCodeLength > 32 {
		return errors.New("backup code length out of range")
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("challenge TTL must be positive")
	}
	if c.TwoFactor.ChallengeMaxAttempts < 1 {
		return errors.New("challenge attempt budget must be positive")
	}
	if c.TrustedDevice.MaxPerUser < 1 {
		return errors.New("trusted device cap must be positive")
	}
	if c.TrustedDevice.TTL <= 0 {
		return errors.New("trusted device TTL must be positive")
	}
	if c.TrustedDevice.MaxDeviceIDLength < 8 || c.TrustedDevice.MaxDeviceNameLength < 1 {
		return errors.New("trusted device input bounds too small")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
