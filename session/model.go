// Package session defines the persistence records and store adapter for
// issued token pairs, second-factor credentials, backup codes, trusted
// devices and pending login challenges. The reference implementation is
// Redis-backed; callers may supply any Store.
package session

// Method is the second-factor method discriminator as it appears on the
// wire. Unknown values must be rejected before reaching the engine.
type Method string

const (
	// MethodTOTP is a time-based one-time password factor.
	MethodTOTP Method = "TOTP"
	// MethodSMS is a dispatched one-time code factor.
	MethodSMS Method = "SMS"
	// MethodBackup is a single-use recovery code factor.
	MethodBackup Method = "BACKUP"
)

// Session is one issued token pair. A session transitions
// Active -> Revoked|Expired and never back; invalidation flips flags
// rather than deleting the record so the trail survives until the
// refresh lifetime lapses.
type Session struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	AccessToken       string `json:"access_token"`
	AccessExpiresAt   int64  `json:"access_expires_at"`
	RefreshHash       string `json:"refresh_hash"`
	RefreshExpiresAt  int64  `json:"refresh_expires_at"`
	Active            bool   `json:"active"`
	Revoked           bool   `json:"revoked"`
	Expired           bool   `json:"expired"`
	CreatedAt         int64  `json:"created_at"`
	ClientIP          string `json:"client_ip,omitempty"`
	ClientUserAgent   string `json:"client_user_agent,omitempty"`
}

// Credential is one second-factor enrollment per (user, method).
// A method is usable for login only once Verified is true. Disabling
// 2FA flips the flag on the user record, not here; credential rows are
// retained for audit.
type Credential struct {
	UserID      string `json:"user_id"`
	Method      Method `json:"method"`
	Secret      []byte `json:"secret,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Verified    bool   `json:"verified"`
	CreatedAt   int64  `json:"created_at"`
	LastUsedAt  int64  `json:"last_used_at,omitempty"`
}

// TrustedDevice is a client fingerprint granted a time-boxed
// second-factor bypass. Expiry is absolute, not sliding.
type TrustedDevice struct {
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	ExpiresAt  int64  `json:"expires_at"`
	Revoked    bool   `json:"revoked"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// LoginChallenge is the pending state between a successful password
// check and second-factor confirmation.
type LoginChallenge struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	ExpiresAt      int64  `json:"expires_at"`
	Attempts       int    `json:"attempts"`
	DeviceID       string `json:"device_id,omitempty"`
	DeviceName     string `json:"device_name,omitempty"`
	RememberDevice bool   `json:"remember_device"`
}
