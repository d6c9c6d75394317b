package permission

// Grants are the organization-level permissions derived from the caller's
// own role set.
type Grants struct {
	IsMember         bool
	IsAdmin          bool
	CanLeave         bool
	CanEditRoles     bool
	CanManageInvites bool
	CanRemoveMembers bool
}

// Derive computes [Grants] for a caller holding roles. An admin may not
// leave: the last-admin check is the server's, but the client never offers
// the control to any admin.
func Derive(roles RoleSet) Grants {
	member := !roles.Empty()
	admin := roles.IsAdmin()
	return Grants{
		IsMember:         member,
		IsAdmin:          admin,
		CanLeave:         member && !admin,
		CanEditRoles:     admin,
		CanManageInvites: admin,
		CanRemoveMembers: admin,
	}
}

// Controls describes which per-member controls to render for a viewer.
type Controls struct {
	CanEditRoles bool
	CanKick      bool
}

// MemberControls decides the controls shown on target's row. Editing is
// hidden on the viewer's own row; kicking is hidden for any admin target,
// independent of who is viewing.
func MemberControls(viewerID string, viewerRoles RoleSet, targetID string, targetRoles RoleSet) Controls {
	if !viewerRoles.IsAdmin() {
		return Controls{}
	}
	self := viewerID != "" && viewerID == targetID
	return Controls{
		CanEditRoles: !self,
		CanKick:      !self && !targetRoles.IsAdmin(),
	}
}
