package authcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/luminacare/authcore/internal"
	"github.com/luminacare/authcore/permission"
	"github.com/luminacare/authcore/session"
	"github.com/luminacare/authcore/token"
)

// TokenManager owns the issued-credential lifecycle: minting pairs,
// verifying access tokens, renewing and revoking sessions. It is
// composed into the Engine but usable standalone.
type TokenManager struct {
	signer    *token.Manager
	store     session.Store
	directory UserDirectory
	logger    *slog.Logger
	metrics   *metrics
}

// NewTokenManager wires a standalone lifecycle manager. The Engine
// builder calls this internally.
func NewTokenManager(signer *token.Manager, store session.Store, directory UserDirectory, logger *slog.Logger) (*TokenManager, error) {
	if signer == nil || store == nil || directory == nil {
		return nil, ErrEngineNotReady
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TokenManager{
		signer:    signer,
		store:     store,
		directory: directory,
		logger:    logger,
	}, nil
}

// Issue mints an access/refresh pair for user and records the session.
//
// The cryptographic mint happens first; bookkeeping follows. When the
// bookkeeping write fails the minted pair is still returned together
// with ErrPersistenceDegraded, so a login is never lost to a transient
// store hiccup. The two writes (session record, last-login timestamp)
// are kept all-or-nothing by a compensating delete.
func (tm *TokenManager) Issue(ctx context.Context, user UserRecord) (*TokenPair, error) {
	if user.ID == "" || user.Email == "" || user.Role == "" {
		return nil, ErrInvalidUserData
	}

	accessToken, accessExpiresAt, err := tm.signer.SignAccess(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExpiresAt, err := tm.signer.SignRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	pair := &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}

	now := time.Now()
	refreshHash := internal.HashToken(refreshToken)
	sess := &session.Session{
		ID:               internal.NewID(),
		UserID:           user.ID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt.Unix(),
		RefreshHash:      refreshHash,
		RefreshExpiresAt: refreshExpiresAt.Unix(),
		Active:           true,
		CreatedAt:        now.Unix(),
		ClientIP:         clientIPFromContext(ctx),
		ClientUserAgent:  userAgentFromContext(ctx),
	}

	if err := tm.store.CreateSession(ctx, sess); err != nil {
		tm.logger.Warn("session persistence failed during issuance",
			slog.String("user_id", user.ID), slog.Any("error", err))
		tm.metrics.inc(MetricPersistenceDegraded)
		return pair, fmt.Errorf("%w: create session: %v", ErrPersistenceDegraded, err)
	}

	if err := tm.directory.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Compensate so the session record and the last-login stamp
		// stay all-or-nothing.
		if delErr := tm.store.DeleteSession(ctx, refreshHash); delErr != nil {
			tm.logger.Warn("compensating session delete failed",
				slog.String("user_id", user.ID), slog.Any("error", delErr))
		}
		tm.logger.Warn("last-login update failed during issuance",
			slog.String("user_id", user.ID), slog.Any("error", err))
		tm.metrics.inc(MetricPersistenceDegraded)
		return pair, fmt.Errorf("%w: update last login: %v", ErrPersistenceDegraded, err)
	}

	tm.metrics.inc(MetricTokenIssued)
	return pair, nil
}

// VerifyAccess checks an access token's signature and lifetime and
// returns the embedded identity. ErrTokenExpired means the caller
// should refresh; ErrTokenInvalid means re-authenticate.
func (tm *TokenManager) VerifyAccess(tokenStr string) (*Claims, error) {
	claims, err := tm.signer.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return &Claims{
		ID:    claims.UID,
		Email: claims.Email,
		Role:  permission.RoleID(claims.Role),
	}, nil
}

// Refresh renews the access token of the session matching refreshToken.
// The refresh token itself is deliberately not rotated; existing
// clients hold it until its absolute expiry.
//
// A session past its refresh window yields ErrSessionExpired. Any other
// mismatch (revoked, inactive, unknown) yields ErrSessionInvalid after
// a precautionary invalidation of whatever record was matched. Store
// failures are fatal here: the store is the source of truth for
// session validity.
func (tm *TokenManager) Refresh(ctx context.Context, refreshToken string) (*AccessRenewal, error) {
	if _, err := tm.signer.ParseRefresh(refreshToken); err != nil {
		tm.metrics.inc(MetricRefreshRejected)
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}

	refreshHash := internal.HashToken(refreshToken)
	sess, err := tm.store.GetSessionByRefreshHash(ctx, refreshHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			tm.metrics.inc(MetricRefreshRejected)
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now()
	if !sess.Active || sess.Revoked || sess.Expired {
		tm.metrics.inc(MetricRefreshRejected)
		if err := tm.store.InvalidateSession(ctx, refreshHash, true, true); err != nil {
			tm.logger.Warn("precautionary invalidation failed",
				slog.String("session_id", sess.ID), slog.Any("error", err))
		}
		return nil, ErrSessionInvalid
	}
	if sess.RefreshExpiresAt <= now.Unix() {
		tm.metrics.inc(MetricRefreshRejected)
		if err := tm.store.InvalidateSession(ctx, refreshHash, false, true); err != nil {
			tm.logger.Warn("expiry invalidation failed",
				slog.String("session_id", sess.ID), slog.Any("error", err))
		}
		return nil, ErrSessionExpired
	}

	// Claims are rebuilt from the directory so role and status changes
	// take effect at the next renewal, not only at re-login.
	user, err := tm.directory.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			tm.metrics.inc(MetricRefreshRejected)
			_ = tm.store.InvalidateSession(ctx, refreshHash, true, true)
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		tm.metrics.inc(MetricRefreshRejected)
		_ = tm.store.InvalidateSession(ctx, refreshHash, true, false)
		return nil, statusErr
	}

	accessToken, accessExpiresAt, err := tm.signer.SignAccess(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	if err := tm.store.UpdateSessionAccess(ctx, refreshHash, accessToken, accessExpiresAt.Unix()); err != nil {
		return nil, fmt.Errorf("%w: update session: %v", ErrStoreUnavailable, err)
	}

	tm.metrics.inc(MetricTokenRefreshed)
	return &AccessRenewal{
		AccessToken:     accessToken,
		AccessExpiresAt: accessExpiresAt,
	}, nil
}

// Revoke invalidates the session matching refreshToken. Idempotent: an
// unknown or already-revoked token is not an error.
func (tm *TokenManager) Revoke(ctx context.Context, refreshToken string) error {
	refreshHash := internal.HashToken(refreshToken)
	_, err := tm.store.GetSessionByRefreshHash(ctx, refreshHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tm.store.InvalidateSession(ctx, refreshHash, true, false); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tm.metrics.inc(MetricTokenRevoked)
	return nil
}

// RevokeAll invalidates every session of userID and reports how many
// were flipped.
func (tm *TokenManager) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrValidation
	}
	n, err := tm.store.RevokeUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		tm.metrics.inc(MetricTokenRevoked)
	}
	return n, nil
}
