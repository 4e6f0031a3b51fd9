package authcore

import (
	"context"
	"time"

	"github.com/luminacare/authcore/permission"
	"github.com/luminacare/authcore/session"
)

// AccountStatus is the lifecycle state of a platform account. The core
// only reads it; the profile subsystem owns transitions.
type AccountStatus uint8

const (
	// AccountActive accounts may log in.
	AccountActive AccountStatus = iota
	// AccountPending accounts have not completed verification.
	AccountPending
	// AccountSuspended accounts are temporarily blocked.
	AccountSuspended
	// AccountBanned accounts are permanently blocked.
	AccountBanned
	// AccountDeleted accounts are soft-deleted.
	AccountDeleted
)

func accountStatusToError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountPending:
		return ErrAccountUnverified
	case AccountSuspended:
		return ErrAccountSuspended
	case AccountBanned:
		return ErrAccountBanned
	case AccountDeleted:
		return ErrAccountDeleted
	default:
		return ErrInvalidCredentials
	}
}

// Method is the second-factor discriminator, re-exported from the
// session package so store implementations and engine callers share
// one type.
type Method = session.Method

const (
	// MethodTOTP is the RFC 6238 time-based one-time password factor.
	MethodTOTP = session.MethodTOTP
	// MethodSMS is the dispatched one-time code factor.
	MethodSMS = session.MethodSMS
	// MethodBackup is the single-use recovery code factor.
	MethodBackup = session.MethodBackup
)

// ParseMethod validates a wire-level method value. Unknown values are
// rejected here, before any engine dispatch.
func ParseMethod(raw string) (Method, error) {
	switch Method(raw) {
	case MethodTOTP:
		return MethodTOTP, nil
	case MethodSMS:
		return MethodSMS, nil
	case MethodBackup:
		return MethodBackup, nil
	default:
		return "", ErrMethodNotSupported
	}
}

// UserRecord is the read model the core consumes from the directory.
type UserRecord struct {
	ID               string
	Email            string
	PasswordHash     string
	Role             permission.RoleID
	Status           AccountStatus
	TwoFactorEnabled bool
}

// UserDirectory is the external user-record collaborator. The core
// reads role/status/credentials and toggles the two-factor flag; all
// other mutation belongs to the profile subsystem.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (UserRecord, error)
	GetByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// Notifier is the external dispatch collaborator for SMS one-time
// codes. Delivery transport is out of scope for the core.
type Notifier interface {
	SendSMSCode(ctx context.Context, phoneNumber, code string) error
}

// Claims is the verified identity extracted from an access token.
type Claims struct {
	ID    string
	Email string
	Role  permission.RoleID
}

// TokenPair is the result of token issuance.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessRenewal is the result of a refresh: a new access token against
// the same refresh token, which is deliberately not rotated.
type AccessRenewal struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// LoginResult is returned by Login and ConfirmLogin. When a second
// factor is required the token fields are empty and ChallengeID refers
// to the pending challenge.
type LoginResult struct {
	Tokens *TokenPair

	SecondFactorRequired bool
	ChallengeID          string
	Methods              []Method
}

// TOTPSetup is returned by TOTP enrollment: the shared secret and an
// otpauth:// URI scannable by standard authenticator apps.
type TOTPSetup struct {
	Secret string
	URI    string
}
