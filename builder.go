package authcore

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/luminacare/authcore/password"
	"github.com/luminacare/authcore/permission"
	"github.com/luminacare/authcore/session"
	"github.com/luminacare/authcore/token"
)

// Builder assembles an Engine. Collect options with the With methods,
// then call Build once; the zero Builder with a store and a user
// directory is a working engine on defaults.
type Builder struct {
	cfg        *Config
	store      session.Store
	redisOpts  *redis.Options
	directory  UserDirectory
	notifier   Notifier
	roleLoader permission.LoaderFunc
	auditSink  AuditSink
	logWriter  io.Writer
	logger     *slog.Logger
}

// New starts a builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	c := cloneConfig(cfg)
	b.cfg = &c
	return b
}

// WithRedis makes Build create its own go-redis client for the
// reference store. The engine owns the client and closes it on Close.
func (b *Builder) WithRedis(opts *redis.Options) *Builder {
	b.redisOpts = opts
	return b
}

// WithStore supplies a caller-owned store implementation. Takes
// precedence over WithRedis.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithUserDirectory supplies the user-record collaborator. Required.
func (b *Builder) WithUserDirectory(directory UserDirectory) *Builder {
	b.directory = directory
	return b
}

// WithNotifier supplies the SMS dispatch collaborator. Optional; the
// SMS factor is unavailable without it.
func (b *Builder) WithNotifier(notifier Notifier) *Builder {
	b.notifier = notifier
	return b
}

// WithRoles supplies a static role table. Defaults to the platform
// roles.
func (b *Builder) WithRoles(roles []permission.Role) *Builder {
	b.roleLoader = permission.StaticLoader(roles)
	return b
}

// WithRoleLoader supplies a dynamic role source, re-queried when the
// cache TTL lapses.
func (b *Builder) WithRoleLoader(loader permission.LoaderFunc) *Builder {
	b.roleLoader = loader
	return b
}

// WithAuditSink supplies the audit destination. Defaults to discard.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger supplies a structured logger. Defaults to discard.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithJSONLogging logs JSON lines to w. Ignored when WithLogger is
// also set.
func (b *Builder) WithJSONLogging(w io.Writer) *Builder {
	b.logWriter = w
	return b
}

// Build validates the configuration, constructs every component and
// returns the ready engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := DefaultConfig()
	if b.cfg != nil {
		cfg = *b.cfg
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if b.directory == nil {
		return nil, fmt.Errorf("%w: user directory required", ErrEngineNotReady)
	}

	logger := b.logger
	if logger == nil && b.logWriter != nil {
		logger = slog.New(slog.NewJSONHandler(b.logWriter, nil))
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store := b.store
	var ownedRedis *redis.Client
	if store == nil {
		if b.redisOpts == nil {
			return nil, fmt.Errorf("%w: store or redis options required", ErrEngineNotReady)
		}
		ownedRedis = redis.NewClient(b.redisOpts)
		store = session.NewRedisStore(ownedRedis, cfg.Session.RedisPrefix)
	}

	signer, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: cfg.Token.SigningMethod,
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("token signer: %w", err)
	}

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	loader := b.roleLoader
	if loader == nil {
		loader = permission.StaticLoader(permission.DefaultRoles())
	}
	roles, err := permission.NewCache(loader, cfg.Roles.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("role table: %w", err)
	}

	engineMetrics := newMetrics(cfg.Metrics)

	tokens, err := NewTokenManager(signer, store, b.directory, logger)
	if err != nil {
		return nil, err
	}
	tokens.metrics = engineMetrics

	engine := &Engine{
		cfg:        cfg,
		store:      store,
		directory:  b.directory,
		notifier:   b.notifier,
		tokens:     tokens,
		hasher:     hasher,
		roles:      roles,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    engineMetrics,
		logger:     logger,
		ownedRedis: ownedRedis,
	}
	return engine, nil
}
