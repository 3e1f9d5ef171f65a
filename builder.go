package authcore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/awe-platform/authcore/audit"
	"github.com/awe-platform/authcore/event"
	"github.com/awe-platform/authcore/password"
	"github.com/awe-platform/authcore/ratelimit"
	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/session"
	"github.com/awe-platform/authcore/store"
	"github.com/awe-platform/authcore/token"
	"github.com/awe-platform/authcore/totp"
)

// Builder assembles an Engine. Configure, then call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	auditSink audit.Sink
	events    event.Sink
	log       zerolog.Logger
	registry  prometheus.Registerer

	built bool
}

// New starts a builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing sessions and rate limits. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the durable storage ports. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithAuditSink sets where audit events land. Defaults to a no-op sink.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithEventSink sets the outbound event port. Defaults to a no-op sink.
func (b *Builder) WithEventSink(sink event.Sink) *Builder {
	b.events = sink
	return b
}

// WithLogger sets the engine's structured logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithMetricsRegistry registers the engine's collectors on the given
// registerer instead of a private registry.
func (b *Builder) WithMetricsRegistry(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("authcore: builder already used")
	}
	b.built = true

	if b.redis == nil {
		return nil, errors.New("authcore: redis client required")
	}
	if b.store.Users == nil || b.store.Tokens == nil || b.store.Roles == nil || b.store.Onboarding == nil {
		return nil, errors.New("authcore: all store ports required")
	}
	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte(cfg.Token.AccessSecret),
		RefreshSecret: []byte(cfg.Token.RefreshSecret),
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		StepUpTTL:     cfg.Token.StepUpTTL,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	events := b.events
	if events == nil {
		events = event.NoOpSink{}
	}

	e := &Engine{
		config:   cfg,
		log:      b.log,
		store:    b.store,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.Lifetime),
		tokens:   tokens,
		hasher:   hasher,
		totp:     totp.New(cfg.TOTP),
		resolver: rbac.NewResolver(b.store.Roles, cfg.RBAC.CacheSize, cfg.RBAC.CacheTTL),
		loginLimiter: ratelimit.New(b.redis, ratelimit.Options{
			Prefix: cfg.Session.RedisPrefix + ":rl:login",
			Points: cfg.RateLimit.LoginPoints,
			Window: cfg.RateLimit.LoginWindow,
		}),
		mfaLimiter: ratelimit.New(b.redis, ratelimit.Options{
			Prefix: cfg.Session.RedisPrefix + ":rl:mfa",
			Points: cfg.RateLimit.MFAPoints,
			Window: cfg.RateLimit.MFAWindow,
		}),
		globalLimiter: ratelimit.New(b.redis, ratelimit.Options{
			Prefix:   cfg.Session.RedisPrefix + ":rl:global",
			Points:   cfg.RateLimit.GlobalPoints,
			Window:   cfg.RateLimit.GlobalWindow,
			FailOpen: cfg.RateLimit.GlobalFailOpen,
		}),
		audit:   audit.NewDispatcher(sink, cfg.AuditBuffer, b.log),
		events:  events,
		metrics: newMetrics(b.registry),
		now:     time.Now,
	}
	return e, nil
}
