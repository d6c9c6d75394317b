// Package permission models organization role sets.
//
// A [RoleSet] is an ordered set of free-form string tags. Two tags are
// reserved and carry meaning for client-side guards: [RoleMember] and
// [RoleAdmin]. Every other tag is organization-defined and opaque to this
// package. [Derive] turns a role set into the permissions the interaction
// layer uses to decide which controls to offer; the server remains the final
// authority for every mutation.
package permission
