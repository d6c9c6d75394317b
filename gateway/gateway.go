package gateway

import (
	"context"

	"github.com/MrEthical07/goTenant/permission"
)

// Gateway is the backend call contract. Every call either yields a typed
// result or fails with an *Error (possibly wrapped). Calls that act on
// behalf of a principal read the bearer token from ctx; see [WithBearer].
type Gateway interface {
	CheckEmail(ctx context.Context, email string) (EmailStatus, error)
	Login(ctx context.Context, email, password string) (Session, error)
	Signup(ctx context.Context, req SignupRequest) error
	// VerifyEmail confirms a verification code. Backends that issue a
	// verification-bound session return it; others return nil.
	VerifyEmail(ctx context.Context, email, code string) (*Session, error)
	ResendVerificationCode(ctx context.Context, email string) error
	SendPasswordResetEmail(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, code, newPassword string) error
	FederatedAuth(ctx context.Context, provider Provider, credential string) (Session, error)
	LinkAccount(ctx context.Context, provider Provider, credential string) error
	UnlinkAccount(ctx context.Context, provider Provider, email string) error

	Me(ctx context.Context) (Profile, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (Profile, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error

	ListMyOrganizations(ctx context.Context) ([]MyOrganization, error)
	CreateOrganization(ctx context.Context, name string) (Organization, error)
	JoinOrganization(ctx context.Context, orgID ID) (Membership, error)
	LeaveOrganization(ctx context.Context, orgID ID) error
	ListJoinableOrganizations(ctx context.Context) ([]Organization, error)
	Members(ctx context.Context, orgID ID) ([]MemberView, error)
	SetMemberRoles(ctx context.Context, orgID, userID ID, roles permission.RoleSet) (Membership, error)
	RemoveMember(ctx context.Context, orgID, userID ID) error

	CreateInvite(ctx context.Context, orgID ID, req InviteRequest) (Invite, error)
	ListInvites(ctx context.Context, orgID ID) ([]Invite, error)
	RevokeInvite(ctx context.Context, orgID, inviteID ID) error
	ListIncomingInvites(ctx context.Context) ([]Invite, error)
	RedeemInvite(ctx context.Context, code string) (Membership, error)
}

type bearerContextKey struct{}
type requestIDContextKey struct{}

// WithBearer attaches the caller's bearer token to ctx.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerContextKey{}, token)
}

// BearerFromContext returns the token attached by [WithBearer].
func BearerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(bearerContextKey{}).(string)
	return token
}

// WithRequestID pins the request id sent with the next call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id pinned by [WithRequestID], or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
