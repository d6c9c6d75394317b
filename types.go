package goTenant

import (
	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/internal/confirm"
	"github.com/MrEthical07/goTenant/internal/flows"
	"github.com/MrEthical07/goTenant/permission"
)

// Wire types shared with the gateway package.
type (
	ID               = gateway.ID
	Provider         = gateway.Provider
	Session          = gateway.Session
	Profile          = gateway.Profile
	ProfileUpdate    = gateway.ProfileUpdate
	LinkedIdentity   = gateway.LinkedIdentity
	EmailStatus      = gateway.EmailStatus
	SignupRequest    = gateway.SignupRequest
	Organization     = gateway.Organization
	MyOrganization   = gateway.MyOrganization
	Membership       = gateway.Membership
	MemberView       = gateway.MemberView
	PrincipalSummary = gateway.PrincipalSummary
	Invite           = gateway.Invite
	InviteRequest    = gateway.InviteRequest
	RoleSet          = permission.RoleSet
)

const (
	ProviderLocal  = gateway.ProviderLocal
	ProviderGoogle = gateway.ProviderGoogle
	ProviderGitHub = gateway.ProviderGitHub

	RoleMember = permission.RoleMember
	RoleAdmin  = permission.RoleAdmin
)

// AuthState is a node of the authentication state machine.
type AuthState = flows.State

const (
	StateCollectingEmail = flows.StateCollectingEmail
	StateCheckingEmail   = flows.StateCheckingEmail
	StateLogin           = flows.StateLogin
	StateSignup          = flows.StateSignup
	StateVerification    = flows.StateVerification
	StateResetRequest    = flows.StateResetRequest
	StateSubmitting      = flows.StateSubmitting
	StateAuthenticated   = flows.StateAuthenticated
)

// NoticeKind tells how a notice should be presented.
type NoticeKind uint8

const (
	NoticeNone NoticeKind = iota
	NoticeInfo
	NoticeError
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeInfo:
		return "info"
	case NoticeError:
		return "error"
	default:
		return "none"
	}
}

// Notice is the single message slot of a component. Err is set for
// NoticeError and carries the failure behind Message.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

func infoNotice(msg string) Notice {
	if msg == "" {
		return Notice{}
	}
	return Notice{Kind: NoticeInfo, Message: msg}
}

func errorNotice(err error) Notice {
	if err == nil {
		return Notice{}
	}
	return Notice{Kind: NoticeError, Message: UserMessage(err), Err: err}
}

// ConfirmPhase is the phase of a two-step confirmation.
type ConfirmPhase = confirm.Phase

const (
	ConfirmUnarmed = confirm.Unarmed
	ConfirmArmed   = confirm.Armed
)

// ConfirmState reports whether a destructive action is armed and until when.
type ConfirmState = confirm.State

// OrgPermissions are the caller's capabilities in one organization.
type OrgPermissions = permission.Grants

// MemberControls are the per-row controls shown to a viewer.
type MemberControls = permission.Controls

// LeaveOutcome is the result of [MembershipManager.Leave].
type LeaveOutcome uint8

const (
	// LeaveArmed means the first request armed the confirmation.
	LeaveArmed LeaveOutcome = iota + 1
	// LeaveDone means the caller left the organization.
	LeaveDone
)

func (o LeaveOutcome) String() string {
	switch o {
	case LeaveArmed:
		return "armed"
	case LeaveDone:
		return "done"
	default:
		return "unknown"
	}
}
