package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/luminacare/authcore/permission"
)

func TestIssueAndVerifyAccess(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	user := seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RoleClinician)

	pair, err := engine.Tokens().Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("both tokens must be minted")
	}
	if !pair.AccessExpiresAt.Before(pair.RefreshExpiresAt) {
		t.Fatal("access expiry must precede refresh expiry")
	}

	claims, err := engine.Tokens().VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.ID != "u1" || claims.Email != "u1@example.com" || claims.Role != permission.RoleClinician {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, ok := directory.lastLogin["u1"]; !ok {
		t.Fatal("last login must be stamped on issuance")
	}
}

func TestIssueRejectsIncompleteUser(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	for _, user := range []UserRecord{
		{Email: "x@example.com", Role: permission.RolePatient},
		{ID: "u1", Role: permission.RolePatient},
		{ID: "u1", Email: "x@example.com"},
	} {
		if _, err := engine.Tokens().Issue(context.Background(), user); !errors.Is(err, ErrInvalidUserData) {
			t.Fatalf("expected ErrInvalidUserData for %+v, got %v", user, err)
		}
	}
}

func TestIssuePersistenceDegraded(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	user := seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)
	directory.failUpdateLastLogin = true

	pair, err := engine.Tokens().Issue(context.Background(), user)
	if !errors.Is(err, ErrPersistenceDegraded) {
		t.Fatalf("expected ErrPersistenceDegraded, got %v", err)
	}
	if pair == nil || pair.AccessToken == "" {
		t.Fatal("degraded issuance must still return the minted pair")
	}

	// The access token works regardless of the bookkeeping failure.
	if _, err := engine.Tokens().VerifyAccess(pair.AccessToken); err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}

	// The compensating delete removed the half-written session, so the
	// refresh token is unusable.
	if _, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after compensation, got %v", err)
	}
}

func TestVerifyAccessDistinguishesExpiredFromInvalid(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if _, err := engine.Tokens().VerifyAccess("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	pair := issuePair(t, engine, "u1")
	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	if _, err := engine.Tokens().VerifyAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestRefreshRenewsAccessOnly(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	pair := issuePair(t, engine, "u1")

	renewal, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if renewal.AccessToken == "" {
		t.Fatal("renewal must carry a new access token")
	}

	claims, err := engine.Tokens().VerifyAccess(renewal.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.ID != "u1" {
		t.Fatalf("claims id = %q, want u1", claims.ID)
	}

	// The original refresh token keeps working: it is not rotated.
	if _, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	user := seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	pair, err := engine.Tokens().Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	user.Role = permission.RoleClinician
	directory.add(user)

	renewal, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	claims, err := engine.Tokens().VerifyAccess(renewal.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.Role != permission.RoleClinician {
		t.Fatalf("renewed role = %q, want clinician", claims.Role)
	}
}

func TestRefreshRejectsRevokedSession(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	pair := issuePair(t, engine, "u1")

	if err := engine.Tokens().Revoke(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestRefreshRejectsSuspendedAccount(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	user := seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	pair, err := engine.Tokens().Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	user.Status = AccountSuspended
	directory.add(user)

	if _, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	// A structurally broken token is invalid before any store lookup.
	if _, err := engine.Tokens().Refresh(context.Background(), "garbage"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	pair := issuePair(t, engine, "u1")

	for i := 0; i < 3; i++ {
		if err := engine.Tokens().Revoke(context.Background(), pair.RefreshToken); err != nil {
			t.Fatalf("Revoke #%d failed: %v", i+1, err)
		}
	}
	if err := engine.Tokens().Revoke(context.Background(), "never-issued"); err != nil {
		t.Fatalf("Revoke of unknown token failed: %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	user := seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		pair, err := engine.Tokens().Issue(context.Background(), user)
		if err != nil {
			t.Fatalf("Issue #%d failed: %v", i+1, err)
		}
		pairs = append(pairs, pair)
	}

	n, err := engine.Tokens().RevokeAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d sessions, want 3", n)
	}
	for _, pair := range pairs {
		if _, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("expected ErrSessionInvalid after RevokeAll, got %v", err)
		}
	}
}

func TestTokensAreOpaqueJWTs(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	pair := issuePair(t, engine, "u1")

	if strings.Count(pair.AccessToken, ".") != 2 || strings.Count(pair.RefreshToken, ".") != 2 {
		t.Fatal("tokens must be compact JWTs")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
}

func issuePair(t *testing.T, engine *Engine, userID string) *TokenPair {
	t.Helper()
	user := UserRecord{
		ID:     userID,
		Email:  userID + "@example.com",
		Role:   permission.RolePatient,
		Status: AccountActive,
	}
	if d, ok := engine.directory.(*testDirectory); ok {
		user.PasswordHash = hashPassword(t, "pass-word-1")
		d.add(user)
	}
	pair, err := engine.Tokens().Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return pair
}

func TestAccessRenewalKeepsRefreshExpiry(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	pair := issuePair(t, engine, "u1")

	renewal, err := engine.Tokens().Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !renewal.AccessExpiresAt.After(time.Now()) {
		t.Fatal("renewed access expiry must be in the future")
	}
	if renewal.AccessExpiresAt.After(pair.RefreshExpiresAt) {
		t.Fatal("renewed access expiry must not outlive the refresh window")
	}
}
