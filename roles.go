package goTenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goTenant/permission"
)

// RoleEditor changes member role sets and removes members. Every
// successful call invalidates the membership caches.
type RoleEditor struct {
	component
	members *MembershipManager
}

func newRoleEditor(c *core, members *MembershipManager) *RoleEditor {
	return &RoleEditor{
		component: component{c: c, name: "roles"},
		members:   members,
	}
}

// SetRoles replaces the role set of userID in orgID. Empty sets, duplicate
// tags and edits of the caller's own roles are refused without a backend
// call.
func (e *RoleEditor) SetRoles(ctx context.Context, orgID, userID ID, tags []string) (Membership, error) {
	if err := e.enter(); err != nil {
		return Membership{}, err
	}
	ctx, err := e.c.authed(ctx)
	if err != nil {
		return Membership{}, e.refuse(err)
	}
	if len(tags) == 0 {
		return Membership{}, e.refuse(ErrEmptyRoleSet)
	}
	if userID == e.c.session.PrincipalID() {
		return Membership{}, e.refuse(ErrSelfRoleEdit)
	}
	roles, err := permission.NewRoleSet(tags...)
	if err != nil {
		return Membership{}, e.refuse(roleError(err))
	}

	ms, err := e.c.gw.SetMemberRoles(ctx, orgID, userID, roles)
	err = mapGatewayError(err)
	e.c.emitAudit(ctx, auditEventMemberRolesChange, err == nil, "", string(orgID), err, func() map[string]string {
		return map[string]string{"target": string(userID), "roles": roles.String()}
	})
	if err = e.settle(ctx, "set_roles", err, nil); err != nil {
		return Membership{}, err
	}
	e.members.Invalidate()
	e.members.observeRoles(orgID, roles)
	e.c.metricInc(MetricRolesChanged)
	return ms, nil
}

// AddTag returns current with tag appended.
func (e *RoleEditor) AddTag(current RoleSet, tag string) (RoleSet, error) {
	next, err := current.Add(tag)
	if err != nil {
		return current, e.refuse(roleError(err))
	}
	return next, nil
}

// KnownTags lists the role tags seen in orgID's member lists, member and
// admin first.
func (e *RoleEditor) KnownTags(orgID ID) []string {
	return e.members.knownTags(orgID)
}

// RemoveMember kicks userID out of orgID. Members whose cached role set
// holds admin, and the caller, are refused without a backend call.
func (e *RoleEditor) RemoveMember(ctx context.Context, orgID, userID ID) error {
	if err := e.enter(); err != nil {
		return err
	}
	ctx, err := e.c.authed(ctx)
	if err != nil {
		return e.refuse(err)
	}
	if userID == e.c.session.PrincipalID() {
		return e.refuse(ErrKickSelf)
	}
	if roles, ok := e.members.memberRoles(orgID, userID); ok && roles.IsAdmin() {
		return e.refuse(ErrKickAdmin)
	}

	err = mapGatewayError(e.c.gw.RemoveMember(ctx, orgID, userID))
	e.c.emitAudit(ctx, auditEventMemberRemove, err == nil, "", string(orgID), err, func() map[string]string {
		return map[string]string{"target": string(userID)}
	})
	if err = e.settle(ctx, "remove_member", err, nil); err != nil {
		return err
	}
	e.members.Invalidate()
	e.c.metricInc(MetricMemberRemoved)
	return nil
}

func roleError(err error) error {
	switch {
	case errors.Is(err, permission.ErrRoleDuplicate):
		return fmt.Errorf("%w: %w", ErrDuplicateRole, err)
	case errors.Is(err, permission.ErrRoleSetEmpty):
		return fmt.Errorf("%w: %w", ErrEmptyRoleSet, err)
	default:
		return fmt.Errorf("%w: %w", ErrRoleInvalid, err)
	}
}
