package authcore

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/luminacare/authcore/password"
	"github.com/luminacare/authcore/permission"
	"github.com/luminacare/authcore/session"
)

// Engine is the auth core: login, token lifecycle, second factors,
// trusted devices and permission resolution behind one façade. Build
// one with New and share it; all methods are safe for concurrent use.
type Engine struct {
	cfg       Config
	store     session.Store
	directory UserDirectory
	notifier  Notifier
	tokens    *TokenManager
	hasher    *password.Argon2
	roles     *permission.Cache
	audit     *auditDispatcher
	metrics   *metrics
	logger    *slog.Logger

	// ownedRedis is non-nil only when the builder created the client;
	// Close then owns its shutdown.
	ownedRedis *redis.Client
}

// Tokens exposes the token lifecycle manager for callers that only
// need issuance, verification, refresh or revocation.
func (e *Engine) Tokens() *TokenManager {
	return e.tokens
}

// Resolver returns the current permission resolver snapshot, rebuilding
// it first when the cache TTL has lapsed.
func (e *Engine) Resolver() *permission.Resolver {
	return e.roles.Resolver()
}

// Can reports whether role's flattened permission closure grants perm,
// either exactly or through a wildcard.
func (e *Engine) Can(role permission.RoleID, perm string) bool {
	return e.roles.Resolver().Can(role, perm)
}

// HasLevel reports whether role clears the given privilege threshold.
// Lower levels are more privileged.
func (e *Engine) HasLevel(role permission.RoleID, min int) bool {
	return e.roles.Resolver().HasLevel(role, min)
}

// ResolvePermissions returns role's flattened permission set.
func (e *Engine) ResolvePermissions(role permission.RoleID) ([]string, error) {
	return e.roles.Resolver().Resolve(role)
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.cfg)
}

// MetricsSnapshot returns the in-process counters keyed by name. Empty
// when metrics are disabled.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close drains the audit dispatcher and releases any resources the
// builder created on the engine's behalf.
func (e *Engine) Close() error {
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownedRedis != nil {
		return e.ownedRedis.Close()
	}
	return nil
}
