package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/jwt"
)

var (
	// ErrNoSession is returned by operations that need an authenticated session.
	ErrNoSession = errors.New("no active session")
	// ErrEmptyToken is returned when saving a session without a token.
	ErrEmptyToken = errors.New("session token is empty")
)

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// Now is the time source used for expiry checks.
	Now func() time.Time
	// Leeway tolerates clock skew when judging token expiry.
	Leeway time.Duration
	// Verifier, when set, rejects hydrated tokens whose signature does not
	// verify. Without it tokens are only inspected.
	Verifier *jwt.Manager
	Logger   *slog.Logger
}

// Manager is the single owner of the in-memory session and its persisted
// copy. The zero value is not usable; call [NewManager].
type Manager struct {
	mu      sync.RWMutex
	store   Store
	cfg     ManagerConfig
	logger  *slog.Logger
	current gateway.Session
	version uint64
}

// NewManager returns a Manager persisting through store.
func NewManager(store Store, cfg ManagerConfig) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{store: store, cfg: cfg, logger: logger}
}

// Init hydrates the in-memory session from the store. Expired tokens,
// tokens that fail verification, corrupt blobs and orphaned profiles are
// discarded and the store is cleaned up. Init never fails on bad persisted
// data; only store transport errors are returned.
func (m *Manager) Init(ctx context.Context) error {
	rec, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		m.set(gateway.Session{})
		return nil
	case errors.Is(err, ErrCorrupt):
		m.logger.Warn("goTenant: discarding corrupt session blob", "error", err)
		m.set(gateway.Session{})
		return m.store.Clear(ctx)
	case err != nil:
		return err
	}

	sess, reason := m.hydrate(rec)
	m.set(sess)
	if reason == "" {
		return nil
	}

	m.logger.Info("goTenant: dropping persisted session", "reason", reason)
	if sess.Token == "" {
		return m.store.Clear(ctx)
	}
	return m.persist(ctx, sess)
}

func (m *Manager) hydrate(rec *Record) (gateway.Session, string) {
	if rec.Token == "" {
		if len(rec.Profile) > 0 {
			return gateway.Session{}, "orphaned profile"
		}
		return gateway.Session{}, ""
	}

	sess := gateway.Session{Token: rec.Token, PrincipalID: gateway.ID(rec.PrincipalID)}
	now := m.cfg.Now()

	if m.cfg.Verifier != nil {
		claims, err := m.cfg.Verifier.Parse(rec.Token)
		if err != nil {
			return gateway.Session{}, "token rejected: " + err.Error()
		}
		if sess.PrincipalID == "" {
			sess.PrincipalID = gateway.ID(claims.UID)
		}
	} else if info, err := jwt.Inspect(rec.Token); err == nil {
		if info.Expired(now, m.cfg.Leeway) {
			return gateway.Session{}, "token expired"
		}
		if sess.PrincipalID == "" {
			sess.PrincipalID = gateway.ID(info.PrincipalID)
		}
	} else if rec.ExpiresAt > 0 && now.After(time.Unix(rec.ExpiresAt, 0).Add(m.cfg.Leeway)) {
		return gateway.Session{}, "token expired"
	}

	if len(rec.Profile) > 0 {
		var p gateway.Profile
		if err := json.Unmarshal(rec.Profile, &p); err != nil || p.Validate() != nil {
			// Keep the token; the profile is refetched on demand.
			return sess, "unreadable profile snapshot"
		}
		sess.Profile = &p
		if sess.PrincipalID == "" {
			sess.PrincipalID = p.ID
		}
	}
	return sess, ""
}

func (m *Manager) set(s gateway.Session) {
	m.mu.Lock()
	m.current = s
	m.version++
	m.mu.Unlock()
}

func (m *Manager) record(s gateway.Session) (*Record, error) {
	rec := &Record{
		SchemaVersion: CurrentSchemaVersion,
		PrincipalID:   string(s.PrincipalID),
		Token:         s.Token,
		SavedAt:       m.cfg.Now().UnixNano(),
	}
	if info, err := jwt.Inspect(s.Token); err == nil && !info.ExpiresAt.IsZero() {
		rec.ExpiresAt = info.ExpiresAt.Unix()
	}
	if s.Profile != nil {
		data, err := json.Marshal(s.Profile)
		if err != nil {
			return nil, fmt.Errorf("session: encode profile: %w", err)
		}
		rec.Profile = data
	}
	return rec, nil
}

func (m *Manager) persist(ctx context.Context, s gateway.Session) error {
	rec, err := m.record(s)
	if err != nil {
		return err
	}
	return m.store.Save(ctx, rec)
}

// Save replaces the current session. The record is persisted first; on a
// persistence failure the in-memory session is left unchanged.
func (m *Manager) Save(ctx context.Context, s gateway.Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}
	if s.Profile != nil {
		if err := s.Profile.Validate(); err != nil {
			return err
		}
		p := *s.Profile
		s.Profile = &p
		if s.PrincipalID == "" {
			s.PrincipalID = p.ID
		}
	}
	if s.PrincipalID == "" {
		if info, err := jwt.Inspect(s.Token); err == nil {
			s.PrincipalID = gateway.ID(info.PrincipalID)
		}
	}

	if err := m.persist(ctx, s); err != nil {
		return err
	}
	m.set(s)
	return nil
}

// UpdateProfile replaces the cached profile of the current session.
func (m *Manager) UpdateProfile(ctx context.Context, p gateway.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	s := m.current
	version := m.version
	m.mu.RUnlock()
	if s.Token == "" {
		return ErrNoSession
	}
	s.Profile = &p
	if p.ID != "" {
		s.PrincipalID = p.ID
	}
	if err := m.persist(ctx, s); err != nil {
		return err
	}

	m.mu.Lock()
	if m.version == version {
		m.current = s
		m.version++
		m.mu.Unlock()
		return nil
	}
	// A logout or re-login raced with the update and the write above may
	// have clobbered its record. Put the store back in line with memory.
	cur := m.current
	m.mu.Unlock()
	if err := m.restore(ctx, cur); err != nil {
		m.logger.Warn("goTenant: failed to restore persisted session", "error", err)
	}
	return ErrNoSession
}

func (m *Manager) restore(ctx context.Context, s gateway.Session) error {
	if s.Token == "" {
		return m.store.Clear(ctx)
	}
	return m.persist(ctx, s)
}

// Logout clears both the in-memory and the persisted session. Memory is
// cleared even if the store fails; the store error is returned.
func (m *Manager) Logout(ctx context.Context) error {
	m.set(gateway.Session{})
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("goTenant: failed to clear persisted session", "error", err)
		return err
	}
	return nil
}

// Current returns a copy of the current session.
func (m *Manager) Current() (gateway.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.current
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s, s.Token != ""
}

// Token returns the bearer token, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

// PrincipalID returns the authenticated principal, or "".
func (m *Manager) PrincipalID() gateway.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.PrincipalID
}

// Profile returns a copy of the cached profile.
func (m *Manager) Profile() (gateway.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current.Profile == nil {
		return gateway.Profile{}, false
	}
	return *m.current.Profile, true
}

// Authenticated reports whether a token is held.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Context attaches the current bearer token to ctx for gateway calls.
func (m *Manager) Context(ctx context.Context) context.Context {
	if token := m.Token(); token != "" {
		return gateway.WithBearer(ctx, token)
	}
	return ctx
}
