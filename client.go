package goTenant

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/internal/audit"
	"github.com/MrEthical07/goTenant/session"
	"github.com/redis/go-redis/v9"
)

// core is the state shared by every component of one Client.
type core struct {
	cfg     Config
	gw      gateway.Gateway
	session *session.Manager
	metrics *Metrics
	audit   *audit.Dispatcher
	logger  *slog.Logger
	now     func() time.Time

	// redis is the connection dialed by Build, closed with the Client.
	redis redis.UniversalClient
}

func (c *core) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// authed returns ctx carrying the session token, or ErrNotAuthenticated
// when no session is held.
func (c *core) authed(ctx context.Context) (context.Context, error) {
	if !c.session.Authenticated() {
		return ctx, ErrNotAuthenticated
	}
	return c.session.Context(ctx), nil
}

var discardMetrics = map[string]MetricID{
	"auth":        MetricAuthResultDiscarded,
	"memberships": MetricMembershipResultDiscarded,
	"invites":     MetricInviteResultDiscarded,
	"roles":       MetricRoleResultDiscarded,
}

// discarded records a gateway result that arrived after its component moved on.
func (c *core) discarded(ctx context.Context, component, op string) {
	c.metricInc(MetricStaleResultDiscarded)
	if id, ok := discardMetrics[component]; ok {
		c.metricInc(id)
	}
	c.emitAudit(ctx, auditEventStaleResultDiscard, false, "", "", ErrStale, func() map[string]string {
		return map[string]string{"component": component, "op": op}
	})
}

// Client is the entry point of the library. It owns one session and the
// components operating on it. Build one with [New].
//
// Every component is safe for concurrent use. A component never holds its
// lock across a gateway call.
type Client struct {
	core *core

	Auth        *AuthFlow
	Memberships *MembershipManager
	Invites     *InviteLifecycle
	Roles       *RoleEditor
}

func newClient(c *core) *Client {
	members := newMembershipManager(c)
	return &Client{
		core:        c,
		Auth:        newAuthFlow(c),
		Memberships: members,
		Invites:     newInviteLifecycle(c, members),
		Roles:       newRoleEditor(c, members),
	}
}

// Init hydrates the session from its store. A hydrated session moves the
// auth flow straight to Authenticated.
func (cl *Client) Init(ctx context.Context) error {
	if err := cl.core.session.Init(ctx); err != nil {
		return err
	}
	if cl.core.session.Authenticated() {
		cl.Auth.markAuthenticated()
	}
	return nil
}

// Close discards the results of calls still in flight and flushes the
// audit dispatcher.
func (cl *Client) Close() {
	if cl == nil {
		return
	}
	cl.Auth.close()
	cl.Memberships.Close()
	cl.Invites.close()
	cl.Roles.close()
	if cl.core.audit != nil {
		cl.core.audit.Close()
	}
	if cl.core.redis != nil {
		if err := cl.core.redis.Close(); err != nil {
			cl.core.logger.Warn("goTenant: closing redis client failed", "error", err)
		}
	}
}

// Session returns a copy of the current session.
func (cl *Client) Session() (Session, bool) {
	return cl.core.session.Current()
}

// Authenticated reports whether a session token is held.
func (cl *Client) Authenticated() bool {
	return cl.core.session.Authenticated()
}

// Gateway returns the backend the client talks to.
func (cl *Client) Gateway() gateway.Gateway {
	return cl.core.gw
}

func (cl *Client) AuditDropped() uint64 {
	if cl == nil || cl.core.audit == nil {
		return 0
	}
	return cl.core.audit.Dropped()
}

func (cl *Client) MetricsSnapshot() MetricsSnapshot {
	if cl == nil || cl.core.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return cl.core.metrics.Snapshot()
}
