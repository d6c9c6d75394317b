package goTenant

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InviteLifecycle mints, lists, revokes and redeems invite codes.
//
// Redemption failures are reported in this order: unknown code, expired,
// issued to another user, no uses left, already a member. An invite that
// is both exhausted and expired reports expiry.
type InviteLifecycle struct {
	component
	members *MembershipManager
}

// InviteView is one row of an organization's invite list.
type InviteView struct {
	Invite
	// Countdown is the remaining lifetime when the list was fetched.
	Countdown string
}

// CountdownAt recomputes the remaining lifetime at now.
func (v InviteView) CountdownAt(now time.Time) string {
	return FormatCountdown(v.ExpiresAt, now)
}

func newInviteLifecycle(c *core, members *MembershipManager) *InviteLifecycle {
	return &InviteLifecycle{
		component: component{c: c, name: "invites"},
		members:   members,
	}
}

// Create mints an invite for orgID. A zero MaxUses takes the configured
// default, as does a nil ExpiresAt when a default lifetime is configured.
func (l *InviteLifecycle) Create(ctx context.Context, orgID ID, req InviteRequest) (Invite, error) {
	if err := l.enter(); err != nil {
		return Invite{}, err
	}

	now := l.c.now()
	req.TargetUsername = strings.TrimSpace(req.TargetUsername)
	if req.MaxUses == 0 {
		req.MaxUses = l.c.cfg.Invite.DefaultMaxUses
	}
	if req.ExpiresAt == nil && l.c.cfg.Invite.DefaultTTL > 0 {
		exp := now.Add(l.c.cfg.Invite.DefaultTTL).UTC()
		req.ExpiresAt = &exp
	}
	if req.MaxUses < 1 {
		return Invite{}, l.refuse(fmt.Errorf("%w: max uses must be at least 1", ErrInviteInvalid))
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return Invite{}, l.refuse(fmt.Errorf("%w: expiry must be in the future", ErrInviteInvalid))
	}

	ctx, err := l.c.authed(ctx)
	if err != nil {
		return Invite{}, l.refuse(err)
	}
	inv, err := l.c.gw.CreateInvite(ctx, orgID, req)
	err = mapGatewayError(err)
	l.c.emitAudit(ctx, auditEventInviteCreate, err == nil, "", string(orgID), err, func() map[string]string {
		return map[string]string{
			"invite_id": string(inv.ID),
			"targeted":  fmt.Sprint(req.TargetUsername != ""),
			"max_uses":  fmt.Sprint(req.MaxUses),
		}
	})
	if err = l.settle(ctx, "create", err, nil); err != nil {
		return Invite{}, err
	}
	l.c.metricInc(MetricInviteCreated)
	return inv, nil
}

// List returns the invites of orgID with their countdown at call time.
func (l *InviteLifecycle) List(ctx context.Context, orgID ID) ([]InviteView, error) {
	if err := l.enter(); err != nil {
		return nil, err
	}
	ctx, err := l.c.authed(ctx)
	if err != nil {
		return nil, l.refuse(err)
	}
	invites, err := l.c.gw.ListInvites(ctx, orgID)
	if err = l.settle(ctx, "list", mapGatewayError(err), nil); err != nil {
		return nil, err
	}

	now := l.c.now()
	views := make([]InviteView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, InviteView{Invite: inv, Countdown: FormatCountdown(inv.ExpiresAt, now)})
	}
	return views, nil
}

// Revoke deletes an invite so its code can no longer be redeemed.
func (l *InviteLifecycle) Revoke(ctx context.Context, orgID, inviteID ID) error {
	if err := l.enter(); err != nil {
		return err
	}
	ctx, err := l.c.authed(ctx)
	if err != nil {
		return l.refuse(err)
	}
	err = mapGatewayError(l.c.gw.RevokeInvite(ctx, orgID, inviteID))
	l.c.emitAudit(ctx, auditEventInviteRevoke, err == nil, "", string(orgID), err, func() map[string]string {
		return map[string]string{"invite_id": string(inviteID)}
	})
	if err = l.settle(ctx, "revoke", err, nil); err != nil {
		return err
	}
	l.c.metricInc(MetricInviteRevoked)
	return nil
}

// Redeem joins the organization behind code.
func (l *InviteLifecycle) Redeem(ctx context.Context, code string) (Membership, error) {
	if err := l.enter(); err != nil {
		return Membership{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Membership{}, l.refuse(fmt.Errorf("%w: code required", ErrInviteInvalid))
	}
	ctx, err := l.c.authed(ctx)
	if err != nil {
		return Membership{}, l.refuse(err)
	}

	ms, err := l.c.gw.RedeemInvite(ctx, code)
	err = mapGatewayError(err)
	l.c.emitAudit(ctx, auditEventInviteRedeem, err == nil, "", string(ms.OrgID), err, nil)
	if err = l.settle(ctx, "redeem", err, nil); err != nil {
		l.c.metricInc(MetricInviteRedeemFailure)
		return Membership{}, err
	}
	l.members.Invalidate()
	l.c.metricInc(MetricInviteRedeemed)
	return ms, nil
}

// ListIncoming returns invites addressed to the caller.
func (l *InviteLifecycle) ListIncoming(ctx context.Context) ([]Invite, error) {
	if err := l.enter(); err != nil {
		return nil, err
	}
	ctx, err := l.c.authed(ctx)
	if err != nil {
		return nil, l.refuse(err)
	}
	invites, err := l.c.gw.ListIncomingInvites(ctx)
	if err = l.settle(ctx, "list_incoming", mapGatewayError(err), nil); err != nil {
		return nil, err
	}
	return invites, nil
}

// FormatCountdown renders the time left until expiresAt as "Xh Ym Zs".
// A nil expiry is "Never" and a past one "Expired".
func FormatCountdown(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "Never"
	}
	left := expiresAt.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	secs := int64(left / time.Second)
	return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
}
