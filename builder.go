package goTenant

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/internal/audit"
	"github.com/MrEthical07/goTenant/jwt"
	"github.com/MrEthical07/goTenant/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Client]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config

	gw        gateway.Gateway
	store     session.Store
	redis     redis.UniversalClient
	auditSink AuditSink
	verifier  *jwt.Manager
	now       func() time.Time

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithGateway uses gw instead of the HTTP gateway built from
// Config.Gateway.
func (b *Builder) WithGateway(gw gateway.Gateway) *Builder {
	b.gw = gw
	return b
}

// WithSessionStore persists the session through store regardless of
// Config.Session.Backend.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRedis supplies the client used by the redis session backend. Without
// it Build dials Config.Session.RedisAddr and the Client closes that
// connection on Close.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink routes audit events to sink. Audit must also be enabled in
// the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTokenVerifier makes session hydration verify token signatures
// instead of only inspecting their claims.
func (b *Builder) WithTokenVerifier(v *jwt.Manager) *Builder {
	b.verifier = v
	return b
}

// WithClock injects the time source used for expiry checks, confirmation
// windows and invite countdowns.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.config.Logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// -------- GATEWAY --------
	gw := b.gw
	if gw == nil {
		if cfg.Gateway.BaseURL == "" {
			return nil, errors.New("Gateway BaseURL required when no gateway is supplied")
		}
		hg, err := gateway.NewHTTPGateway(gateway.HTTPConfig{
			BaseURL:   cfg.Gateway.BaseURL,
			Timeout:   cfg.Gateway.Timeout,
			UserAgent: cfg.Gateway.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		gw = hg
	}
	metrics := NewMetrics(cfg.Metrics)
	gw = instrument(gw, metrics, now)

	// -------- SESSION STORE --------
	store := b.store
	var owned redis.UniversalClient
	if store == nil {
		switch cfg.Session.Backend {
		case SessionBackendFile:
			store = session.NewFileStore(cfg.Session.FilePath)
		case SessionBackendRedis:
			client := b.redis
			if client == nil {
				if cfg.Session.RedisAddr == "" {
					return nil, errors.New("Session RedisAddr required when no redis client is supplied")
				}
				owned = redis.NewClient(&redis.Options{
					Addr:     cfg.Session.RedisAddr,
					Password: cfg.Session.RedisPassword,
					DB:       cfg.Session.RedisDB,
				})
				client = owned
			}
			store = session.NewRedisStore(client, cfg.Session.RedisPrefix, cfg.Session.Slot)
		default:
			store = session.NewMemoryStore()
		}
	}

	sessions := session.NewManager(store, session.ManagerConfig{
		Now:      now,
		Leeway:   cfg.Session.Leeway,
		Verifier: b.verifier,
		Logger:   logger,
	})

	var sink audit.Sink = b.auditSink
	if sink != nil && cfg.Audit.FailuresOnly {
		sink = audit.NewFilterSink(sink, audit.FailuresOnly)
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		DrainTimeout: cfg.Audit.DrainTimeout,
		OnDrop: func(e audit.Event) {
			logger.Warn("goTenant: audit event dropped", "event", e.EventType, "component", e.Component)
		},
	}, sink)

	c := &core{
		cfg:     cfg,
		gw:      gw,
		session: sessions,
		metrics: metrics,
		audit:   dispatcher,
		logger:  logger,
		now:     now,
		redis:   owned,
	}

	b.built = true
	return newClient(c), nil
}
