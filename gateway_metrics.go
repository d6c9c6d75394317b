package goTenant

import (
	"context"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/permission"
)

// instrumentedGateway counts every backend call and records its latency.
type instrumentedGateway struct {
	next    gateway.Gateway
	metrics *Metrics
	now     func() time.Time
}

var _ gateway.Gateway = (*instrumentedGateway)(nil)

func instrument(next gateway.Gateway, m *Metrics, now func() time.Time) gateway.Gateway {
	if !m.Enabled() {
		return next
	}
	if now == nil {
		now = time.Now
	}
	return &instrumentedGateway{next: next, metrics: m, now: now}
}

func (g *instrumentedGateway) observe(start time.Time, err error) {
	g.metrics.Inc(MetricGatewayCall)
	g.metrics.Observe(MetricGatewayLatency, g.now().Sub(start))
	if err == nil {
		return
	}
	g.metrics.Inc(MetricGatewayFailure)
	if gateway.ErrorCode(err) == gateway.CodeUnavailable {
		g.metrics.Inc(MetricGatewayTransient)
	}
}

func measure[T any](g *instrumentedGateway, fn func() (T, error)) (T, error) {
	start := g.now()
	v, err := fn()
	g.observe(start, err)
	return v, err
}

func measureErr(g *instrumentedGateway, fn func() error) error {
	start := g.now()
	err := fn()
	g.observe(start, err)
	return err
}

func (g *instrumentedGateway) CheckEmail(ctx context.Context, email string) (gateway.EmailStatus, error) {
	return measure(g, func() (gateway.EmailStatus, error) { return g.next.CheckEmail(ctx, email) })
}

func (g *instrumentedGateway) Login(ctx context.Context, email, password string) (gateway.Session, error) {
	return measure(g, func() (gateway.Session, error) { return g.next.Login(ctx, email, password) })
}

func (g *instrumentedGateway) Signup(ctx context.Context, req gateway.SignupRequest) error {
	return measureErr(g, func() error { return g.next.Signup(ctx, req) })
}

func (g *instrumentedGateway) VerifyEmail(ctx context.Context, email, code string) (*gateway.Session, error) {
	return measure(g, func() (*gateway.Session, error) { return g.next.VerifyEmail(ctx, email, code) })
}

func (g *instrumentedGateway) ResendVerificationCode(ctx context.Context, email string) error {
	return measureErr(g, func() error { return g.next.ResendVerificationCode(ctx, email) })
}

func (g *instrumentedGateway) SendPasswordResetEmail(ctx context.Context, email string) error {
	return measureErr(g, func() error { return g.next.SendPasswordResetEmail(ctx, email) })
}

func (g *instrumentedGateway) ResetPassword(ctx context.Context, code, newPassword string) error {
	return measureErr(g, func() error { return g.next.ResetPassword(ctx, code, newPassword) })
}

func (g *instrumentedGateway) FederatedAuth(ctx context.Context, provider gateway.Provider, credential string) (gateway.Session, error) {
	return measure(g, func() (gateway.Session, error) { return g.next.FederatedAuth(ctx, provider, credential) })
}

func (g *instrumentedGateway) LinkAccount(ctx context.Context, provider gateway.Provider, credential string) error {
	return measureErr(g, func() error { return g.next.LinkAccount(ctx, provider, credential) })
}

func (g *instrumentedGateway) UnlinkAccount(ctx context.Context, provider gateway.Provider, email string) error {
	return measureErr(g, func() error { return g.next.UnlinkAccount(ctx, provider, email) })
}

func (g *instrumentedGateway) Me(ctx context.Context) (gateway.Profile, error) {
	return measure(g, func() (gateway.Profile, error) { return g.next.Me(ctx) })
}

func (g *instrumentedGateway) UpdateProfile(ctx context.Context, update gateway.ProfileUpdate) (gateway.Profile, error) {
	return measure(g, func() (gateway.Profile, error) { return g.next.UpdateProfile(ctx, update) })
}

func (g *instrumentedGateway) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return measureErr(g, func() error { return g.next.ChangePassword(ctx, oldPassword, newPassword) })
}

func (g *instrumentedGateway) ListMyOrganizations(ctx context.Context) ([]gateway.MyOrganization, error) {
	return measure(g, func() ([]gateway.MyOrganization, error) { return g.next.ListMyOrganizations(ctx) })
}

func (g *instrumentedGateway) CreateOrganization(ctx context.Context, name string) (gateway.Organization, error) {
	return measure(g, func() (gateway.Organization, error) { return g.next.CreateOrganization(ctx, name) })
}

func (g *instrumentedGateway) JoinOrganization(ctx context.Context, orgID gateway.ID) (gateway.Membership, error) {
	return measure(g, func() (gateway.Membership, error) { return g.next.JoinOrganization(ctx, orgID) })
}

func (g *instrumentedGateway) LeaveOrganization(ctx context.Context, orgID gateway.ID) error {
	return measureErr(g, func() error { return g.next.LeaveOrganization(ctx, orgID) })
}

func (g *instrumentedGateway) ListJoinableOrganizations(ctx context.Context) ([]gateway.Organization, error) {
	return measure(g, func() ([]gateway.Organization, error) { return g.next.ListJoinableOrganizations(ctx) })
}

func (g *instrumentedGateway) Members(ctx context.Context, orgID gateway.ID) ([]gateway.MemberView, error) {
	return measure(g, func() ([]gateway.MemberView, error) { return g.next.Members(ctx, orgID) })
}

func (g *instrumentedGateway) SetMemberRoles(ctx context.Context, orgID, userID gateway.ID, roles permission.RoleSet) (gateway.Membership, error) {
	return measure(g, func() (gateway.Membership, error) { return g.next.SetMemberRoles(ctx, orgID, userID, roles) })
}

func (g *instrumentedGateway) RemoveMember(ctx context.Context, orgID, userID gateway.ID) error {
	return measureErr(g, func() error { return g.next.RemoveMember(ctx, orgID, userID) })
}

func (g *instrumentedGateway) CreateInvite(ctx context.Context, orgID gateway.ID, req gateway.InviteRequest) (gateway.Invite, error) {
	return measure(g, func() (gateway.Invite, error) { return g.next.CreateInvite(ctx, orgID, req) })
}

func (g *instrumentedGateway) ListInvites(ctx context.Context, orgID gateway.ID) ([]gateway.Invite, error) {
	return measure(g, func() ([]gateway.Invite, error) { return g.next.ListInvites(ctx, orgID) })
}

func (g *instrumentedGateway) RevokeInvite(ctx context.Context, orgID, inviteID gateway.ID) error {
	return measureErr(g, func() error { return g.next.RevokeInvite(ctx, orgID, inviteID) })
}

func (g *instrumentedGateway) ListIncomingInvites(ctx context.Context) ([]gateway.Invite, error) {
	return measure(g, func() ([]gateway.Invite, error) { return g.next.ListIncomingInvites(ctx) })
}

func (g *instrumentedGateway) RedeemInvite(ctx context.Context, code string) (gateway.Membership, error) {
	return measure(g, func() (gateway.Membership, error) { return g.next.RedeemInvite(ctx, code) })
}
