package goTenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/goTenant/internal/confirm"
	"github.com/MrEthical07/goTenant/permission"
)

// MembershipManager lists, creates, joins and leaves organizations on
// behalf of the session principal. Organization and member lists are
// cached until a mutation issued through any component invalidates them.
type MembershipManager struct {
	component

	leave *confirm.Window

	// guarded by component.mu
	mine    []MyOrganization
	mineOK  bool
	members map[ID][]MemberView
	gen     uint64

	// known survives invalidation; it is dropped on logout.
	known map[ID]*permission.Registry
}

const maxKnownTags = 64

func newMembershipManager(c *core) *MembershipManager {
	return &MembershipManager{
		component: component{c: c, name: "memberships"},
		leave:     confirm.New(c.cfg.Confirm.Window, c.now),
		members:   map[ID][]MemberView{},
		known:     map[ID]*permission.Registry{},
	}
}

// ListMine returns the caller's organizations with their roles, in the
// order the backend returned them.
func (m *MembershipManager) ListMine(ctx context.Context) ([]MyOrganization, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.mineOK {
		out := append([]MyOrganization(nil), m.mine...)
		m.mu.Unlock()
		return out, nil
	}
	gen := m.gen
	m.mu.Unlock()

	ctx, err := m.c.authed(ctx)
	if err != nil {
		return nil, m.refuse(err)
	}
	orgs, err := m.c.gw.ListMyOrganizations(ctx)
	err = mapGatewayError(err)
	if err = m.settle(ctx, "list_mine", err, func() {
		if m.gen == gen {
			m.mine = append([]MyOrganization(nil), orgs...)
			m.mineOK = true
		}
	}); err != nil {
		return nil, err
	}
	return orgs, nil
}

// ListJoinable returns organizations the caller may join directly.
func (m *MembershipManager) ListJoinable(ctx context.Context) ([]Organization, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	ctx, err := m.c.authed(ctx)
	if err != nil {
		return nil, m.refuse(err)
	}
	orgs, err := m.c.gw.ListJoinableOrganizations(ctx)
	if err = m.settle(ctx, "list_joinable", mapGatewayError(err), nil); err != nil {
		return nil, err
	}
	return orgs, nil
}

// Create makes a new organization with the caller as admin.
func (m *MembershipManager) Create(ctx context.Context, name string) (Organization, error) {
	if err := m.enter(); err != nil {
		return Organization{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, m.refuse(ErrInvalidOrgName)
	}
	ctx, err := m.c.authed(ctx)
	if err != nil {
		return Organization{}, m.refuse(err)
	}

	org, err := m.c.gw.CreateOrganization(ctx, name)
	err = mapGatewayError(err)
	m.c.emitAudit(ctx, auditEventOrgCreate, err == nil, "", string(org.ID), err, func() map[string]string {
		return map[string]string{"name": name}
	})
	if err = m.settle(ctx, "create", err, m.invalidateLocked); err != nil {
		return Organization{}, err
	}
	m.c.metricInc(MetricOrgCreated)
	return org, nil
}

// Join adds the caller to a joinable organization.
func (m *MembershipManager) Join(ctx context.Context, orgID ID) (Membership, error) {
	if err := m.enter(); err != nil {
		return Membership{}, err
	}
	ctx, err := m.c.authed(ctx)
	if err != nil {
		return Membership{}, m.refuse(err)
	}

	ms, err := m.c.gw.JoinOrganization(ctx, orgID)
	err = mapGatewayError(err)
	m.c.emitAudit(ctx, auditEventOrgJoin, err == nil, "", string(orgID), err, nil)
	if err = m.settle(ctx, "join", err, m.invalidateLocked); err != nil {
		return Membership{}, err
	}
	m.c.metricInc(MetricOrgJoined)
	return ms, nil
}

// Leave needs two calls within the confirmation window: the first arms
// and returns LeaveArmed, the second leaves and returns LeaveDone. A caller
// holding the admin tag, or outside orgID, is refused before anything is
// armed.
func (m *MembershipManager) Leave(ctx context.Context, orgID ID) (LeaveOutcome, error) {
	if err := m.enter(); err != nil {
		return 0, err
	}
	if _, err := m.c.authed(ctx); err != nil {
		return 0, m.refuse(err)
	}

	roles, err := m.rolesIn(ctx, orgID)
	if err != nil {
		return 0, err
	}
	if roles.Empty() {
		return 0, m.refuse(fmt.Errorf("%w: not a member of organization %s", ErrNotFound, orgID))
	}
	if roles.IsAdmin() {
		m.c.metricInc(MetricLeaveRefused)
		m.c.emitAudit(ctx, auditEventOrgLeave, false, "", string(orgID), ErrLastAdminLeave, func() map[string]string {
			return map[string]string{"reason": "admin"}
		})
		return 0, m.refuse(ErrLastAdminLeave)
	}

	key := string(orgID)
	if m.leave.Request(key) == confirm.OutcomeArmed {
		m.c.metricInc(MetricOrgLeaveArmed)
		return LeaveArmed, nil
	}

	callCtx := m.c.session.Context(ctx)
	err = mapGatewayError(m.c.gw.LeaveOrganization(callCtx, orgID))
	m.c.emitAudit(ctx, auditEventOrgLeave, err == nil, "", key, err, nil)
	if err = m.settle(ctx, "leave", err, func() {
		m.leave.Disarm(key)
		m.invalidateLocked()
	}); err != nil {
		return 0, err
	}
	m.c.metricInc(MetricOrgLeft)
	return LeaveDone, nil
}

// LeaveState reports whether leaving orgID is armed.
func (m *MembershipManager) LeaveState(orgID ID) ConfirmState {
	return m.leave.State(string(orgID))
}

// Members returns the member list of orgID.
func (m *MembershipManager) Members(ctx context.Context, orgID ID) ([]MemberView, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if rows, ok := m.members[orgID]; ok {
		out := append([]MemberView(nil), rows...)
		m.mu.Unlock()
		return out, nil
	}
	gen := m.gen
	m.mu.Unlock()

	ctx, err := m.c.authed(ctx)
	if err != nil {
		return nil, m.refuse(err)
	}
	rows, err := m.c.gw.Members(ctx, orgID)
	if err = m.settle(ctx, "members", mapGatewayError(err), func() {
		if m.gen == gen {
			m.members[orgID] = append([]MemberView(nil), rows...)
		}
		for _, row := range rows {
			m.registryLocked(orgID).Observe(row.Roles)
		}
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// Permissions derives the caller's capabilities in orgID from its role
// set. A caller outside orgID gets the zero value.
func (m *MembershipManager) Permissions(ctx context.Context, orgID ID) (OrgPermissions, error) {
	roles, err := m.rolesIn(ctx, orgID)
	if err != nil {
		return OrgPermissions{}, err
	}
	return permission.Derive(roles), nil
}

// MemberControls decides which controls viewerID sees on view's row, using
// the viewer's cached roles in view's organization. Unknown viewer roles
// show no controls.
func (m *MembershipManager) MemberControls(viewerID ID, view MemberView) MemberControls {
	m.mu.Lock()
	viewerRoles, _ := m.cachedRolesLocked(view.OrgID, viewerID)
	m.mu.Unlock()
	return permission.MemberControls(string(viewerID), viewerRoles, string(view.PrincipalID), view.Roles)
}

// Invalidate drops every cached list.
func (m *MembershipManager) Invalidate() {
	m.mu.Lock()
	m.invalidateLocked()
	m.mu.Unlock()
}

// Close discards the results of calls still in flight. Later calls fail
// with ErrClosed.
func (m *MembershipManager) Close() {
	m.close()
	m.leave.Reset()
}

// reset forgets everything tied to the previous principal.
func (m *MembershipManager) reset() {
	m.mu.Lock()
	m.invalidateLocked()
	m.known = map[ID]*permission.Registry{}
	m.notice = Notice{}
	m.mu.Unlock()
	m.leave.Reset()
}

func (m *MembershipManager) invalidateLocked() {
	m.mine = nil
	m.mineOK = false
	m.members = map[ID][]MemberView{}
	m.gen++
}

// rolesIn returns the caller's roles in orgID, loading the organization
// list when it is not cached.
func (m *MembershipManager) rolesIn(ctx context.Context, orgID ID) (RoleSet, error) {
	orgs, err := m.ListMine(ctx)
	if err != nil {
		return RoleSet{}, err
	}
	for _, o := range orgs {
		if o.ID == orgID {
			return o.Roles, nil
		}
	}
	return RoleSet{}, nil
}

func (m *MembershipManager) registryLocked(orgID ID) *permission.Registry {
	r, ok := m.known[orgID]
	if !ok {
		r = permission.NewRegistry(maxKnownTags)
		m.known[orgID] = r
	}
	return r
}

func (m *MembershipManager) observeRoles(orgID ID, roles RoleSet) {
	m.mu.Lock()
	m.registryLocked(orgID).Observe(roles)
	m.mu.Unlock()
}

func (m *MembershipManager) knownTags(orgID ID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registryLocked(orgID).Tags()
}

// memberRoles returns the cached roles of userID in orgID.
func (m *MembershipManager) memberRoles(orgID, userID ID) (RoleSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachedRolesLocked(orgID, userID)
}

func (m *MembershipManager) cachedRolesLocked(orgID, userID ID) (RoleSet, bool) {
	if userID == m.c.session.PrincipalID() && m.mineOK {
		for _, o := range m.mine {
			if o.ID == orgID {
				return o.Roles, true
			}
		}
	}
	for _, row := range m.members[orgID] {
		if row.PrincipalID == userID {
			return row.Roles, true
		}
	}
	return RoleSet{}, false
}
