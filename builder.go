package authengine

import (
	"errors"
	"time"

	"github.com/MrEthical07/authengine/internal/audit"
	"github.com/MrEthical07/authengine/internal/keylock"
	"github.com/MrEthical07/authengine/internal/rate"
	"github.com/MrEthical07/authengine/password"
	"github.com/MrEthical07/authengine/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. It is single-use: a second Build fails.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	auditSink AuditSink
	logger    *zerolog.Logger
	now       func() time.Time
	stripes   int

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with DefaultConfig and no store.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; later With* calls adjust it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. It is required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the client used by the login throttle. It is required when
// RateLimit.Enabled is set and ignored otherwise.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the sink behind the async dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operational messages. Without it the
// global zerolog logger is used.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock overrides time.Now for session expiry decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithLockStripes sets how many mutexes guard per-user read-modify-write.
func (b *Builder) WithLockStripes(n int) *Builder {
	b.stripes = n
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the session-check latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, requires a store (and a Redis client
// when throttling is on) and starts the audit dispatcher.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("rate limiting requires redis client")
	}

	hasher, err := password.NewArgon2(cfg.Password.hasherConfig())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		users:   credentials{store: b.store},
		hasher:  hasher,
		locks:   keylock.New(b.stripes),
		metrics: NewMetrics(cfg.Metrics),
		now:     time.Now,
	}
	if b.now != nil {
		engine.now = b.now
	}
	if b.logger != nil {
		engine.logger = *b.logger
	} else {
		engine.logger = defaultLogger()
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxAttempts:      cfg.RateLimit.MaxAttempts,
			Window:           cfg.RateLimit.Window,
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			Prefix:           cfg.RateLimit.RedisPrefix,
		})
	}

	overflow := audit.Block
	if cfg.Audit.DropIfFull {
		overflow = audit.Drop
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		Overflow:   overflow,
		Logger:     &engine.logger,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
