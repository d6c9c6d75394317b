package goTenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goTenant/session"
)

// Profile returns the cached profile of the session principal.
func (cl *Client) Profile() (Profile, bool) {
	return cl.core.session.Profile()
}

// RefreshProfile refetches the profile and stores it in the session.
func (cl *Client) RefreshProfile(ctx context.Context) (Profile, error) {
	c := cl.core
	ctx, err := c.authed(ctx)
	if err != nil {
		return Profile{}, err
	}
	p, err := c.gw.Me(ctx)
	if err != nil {
		return Profile{}, mapGatewayError(err)
	}
	if err := c.session.UpdateProfile(ctx, p); err != nil {
		return Profile{}, sessionError(err)
	}
	return p, nil
}

// UpdateProfile applies update and stores the profile the backend returns.
func (cl *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (Profile, error) {
	c := cl.core
	ctx, err := c.authed(ctx)
	if err != nil {
		return Profile{}, err
	}
	if update.FullName != nil && strings.TrimSpace(*update.FullName) == "" {
		return Profile{}, ErrMissingField
	}

	p, err := c.gw.UpdateProfile(ctx, update)
	if err != nil {
		err = mapGatewayError(err)
	} else {
		err = sessionError(c.session.UpdateProfile(ctx, p))
	}
	c.emitAudit(ctx, auditEventProfileUpdate, err == nil, "", "", err, nil)
	if err != nil {
		return Profile{}, err
	}
	c.metricInc(MetricProfileUpdate)
	return p, nil
}

// ChangePassword replaces the password of a local account. Principals
// signing in through Google or GitHub are refused.
func (cl *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	c := cl.core
	ctx, err := c.authed(ctx)
	if err != nil {
		return err
	}
	if p, ok := c.session.Profile(); ok && !p.IsLocal() {
		c.metricInc(MetricPasswordChangeFailure)
		return ErrSocialPasswordChange
	}
	if oldPassword == "" || newPassword == "" {
		return ErrMissingField
	}

	err = mapGatewayError(c.gw.ChangePassword(ctx, oldPassword, newPassword))
	c.emitAudit(ctx, auditEventPasswordChange, err == nil, "", "", err, nil)
	if err != nil {
		c.metricInc(MetricPasswordChangeFailure)
		return err
	}
	c.metricInc(MetricPasswordChangeSuccess)
	return nil
}

// LinkAccount attaches a Google or GitHub identity to the principal. The
// active token is kept; only the cached profile is refreshed.
func (cl *Client) LinkAccount(ctx context.Context, provider Provider, credential string) error {
	c := cl.core
	ctx, err := c.authed(ctx)
	if err != nil {
		return err
	}
	if !provider.Federated() {
		return ErrUnsupportedProvider
	}
	if strings.TrimSpace(credential) == "" {
		return ErrMissingField
	}

	err = mapGatewayError(c.gw.LinkAccount(ctx, provider, credential))
	c.emitAudit(ctx, auditEventAccountLink, err == nil, "", "", err, func() map[string]string {
		return map[string]string{"provider": string(provider)}
	})
	if err != nil {
		return err
	}
	c.metricInc(MetricAccountLinked)
	cl.refreshQuietly(ctx)
	return nil
}

// UnlinkAccount detaches the identity of provider registered under email.
func (cl *Client) UnlinkAccount(ctx context.Context, provider Provider, email string) error {
	c := cl.core
	ctx, err := c.authed(ctx)
	if err != nil {
		return err
	}
	if !provider.Federated() {
		return ErrUnsupportedProvider
	}

	err = mapGatewayError(c.gw.UnlinkAccount(ctx, provider, strings.TrimSpace(email)))
	c.emitAudit(ctx, auditEventAccountUnlink, err == nil, "", "", err, func() map[string]string {
		return map[string]string{"provider": string(provider)}
	})
	if err != nil {
		return err
	}
	c.metricInc(MetricAccountUnlinked)
	cl.refreshQuietly(ctx)
	return nil
}

// Logout clears the in-memory and persisted session, returns the auth flow
// to its start and drops every cache. The in-memory state is cleared even
// when the store fails.
func (cl *Client) Logout(ctx context.Context) error {
	c := cl.core
	principal := string(c.session.PrincipalID())

	err := c.session.Logout(ctx)
	cl.Auth.Reset()
	cl.Memberships.reset()
	cl.Invites.ClearNotice()
	cl.Roles.ClearNotice()

	c.metricInc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, err == nil, principal, "", err, nil)
	return err
}

// refreshQuietly updates the cached profile after a link change. A failure
// keeps the stale profile.
func (cl *Client) refreshQuietly(ctx context.Context) {
	if _, err := cl.RefreshProfile(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
		cl.core.logger.Warn("goTenant: profile refresh after link change failed", "error", err)
	}
}

func sessionError(err error) error {
	if errors.Is(err, session.ErrNoSession) {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return err
}
