package goTenant

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full client configuration. Build one with [DefaultConfig]
// or [LoadConfigFromEnv] and adjust fields before passing it to
// [Builder.WithConfig].
type Config struct {
	Gateway GatewayConfig
	Session SessionConfig
	Flow    FlowConfig
	Confirm ConfirmConfig
	Invite  InviteConfig
	Audit   AuditConfig
	Metrics MetricsConfig

	// Logger receives background anomalies only. Nil discards.
	Logger *slog.Logger
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig configures the HTTP backend gateway.
type GatewayConfig struct {
	BaseURL   string        `env:"GOTENANT_GATEWAY_BASE_URL"`
	Timeout   time.Duration `env:"GOTENANT_GATEWAY_TIMEOUT"`
	UserAgent string        `env:"GOTENANT_GATEWAY_USER_AGENT"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionBackend selects where the session is persisted.
type SessionBackend string

const (
	SessionBackendMemory SessionBackend = "memory"
	SessionBackendFile   SessionBackend = "file"
	SessionBackendRedis  SessionBackend = "redis"
)

// SessionConfig configures session persistence.
type SessionConfig struct {
	Backend SessionBackend `env:"GOTENANT_SESSION_BACKEND"`
	// FilePath is used by the file backend.
	FilePath string `env:"GOTENANT_SESSION_FILE"`

	RedisAddr     string `env:"GOTENANT_SESSION_REDIS_ADDR"`
	RedisPassword string `env:"GOTENANT_SESSION_REDIS_PASSWORD"`
	RedisDB       int    `env:"GOTENANT_SESSION_REDIS_DB"`
	RedisPrefix   string `env:"GOTENANT_SESSION_REDIS_PREFIX"`
	// Slot names the persisted session inside the prefix, one per profile.
	Slot string `env:"GOTENANT_SESSION_SLOT"`

	// Leeway tolerates clock skew when judging token expiry on hydrate.
	Leeway time.Duration `env:"GOTENANT_SESSION_LEEWAY"`
}

/*
====================================
FLOW / MEMBERSHIP CONFIG
====================================
*/

// FlowConfig configures the authentication flow.
type FlowConfig struct {
	// ReplayPasswordAfterVerify signs in with the password entered at signup
	// when the verify call does not hand back a session.
	ReplayPasswordAfterVerify bool `env:"GOTENANT_FLOW_REPLAY_PASSWORD"`
}

// ConfirmConfig configures two-step confirmation of destructive actions.
type ConfirmConfig struct {
	Window time.Duration `env:"GOTENANT_CONFIRM_WINDOW"`
}

// InviteConfig holds defaults applied to new invites.
type InviteConfig struct {
	DefaultMaxUses int           `env:"GOTENANT_INVITE_DEFAULT_MAX_USES"`
	DefaultTTL     time.Duration `env:"GOTENANT_INVITE_DEFAULT_TTL"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"GOTENANT_AUDIT_ENABLED"`
	BufferSize int  `env:"GOTENANT_AUDIT_BUFFER_SIZE"`
	DropIfFull bool `env:"GOTENANT_AUDIT_DROP_IF_FULL"`
	// FailuresOnly keeps unsuccessful events and discards the rest.
	FailuresOnly bool `env:"GOTENANT_AUDIT_FAILURES_ONLY"`
	// DrainTimeout bounds delivery of queued events on Close.
	DrainTimeout time.Duration `env:"GOTENANT_AUDIT_DRAIN_TIMEOUT"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"GOTENANT_METRICS_ENABLED"`
	EnableLatencyHistograms bool `env:"GOTENANT_METRICS_LATENCY"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Timeout:   30 * time.Second,
			UserAgent: "goTenant",
		},
		Session: SessionConfig{
			Backend:     SessionBackendMemory,
			RedisPrefix: "gt:sess",
			Slot:        "default",
			Leeway:      30 * time.Second,
		},
		Flow: FlowConfig{
			ReplayPasswordAfterVerify: true,
		},
		Confirm: ConfirmConfig{
			Window: 5 * time.Second,
		},
		Invite: InviteConfig{
			DefaultMaxUses: 1,
			DefaultTTL:     0,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// LoadConfigFromEnv starts from the defaults and overrides every field
// whose GOTENANT_* variable is set.
func LoadConfigFromEnv() (Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	// Gateway
	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("Gateway BaseURL must be an absolute URL")
		}
	}
	if c.Gateway.Timeout < 0 {
		return errors.New("Gateway Timeout must be >= 0")
	}

	// Session
	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendFile:
		if strings.TrimSpace(c.Session.FilePath) == "" {
			return errors.New("Session FilePath required for file backend")
		}
	case SessionBackendRedis:
		if c.Session.RedisPrefix == "" {
			return errors.New("Session RedisPrefix required for redis backend")
		}
		if c.Session.Slot == "" {
			return errors.New("Session Slot required for redis backend")
		}
	default:
		return fmt.Errorf("unsupported Session Backend %q", c.Session.Backend)
	}
	if c.Session.Leeway < 0 {
		return errors.New("Session Leeway must be >= 0")
	}

	// Confirm
	if c.Confirm.Window <= 0 {
		return errors.New("Confirm Window must be > 0")
	}

	// Invite
	if c.Invite.DefaultMaxUses < 1 {
		return errors.New("Invite DefaultMaxUses must be >= 1")
	}
	if c.Invite.DefaultTTL < 0 {
		return errors.New("Invite DefaultTTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.DrainTimeout < 0 {
		return errors.New("Audit DrainTimeout must be >= 0")
	}

	return nil
}
