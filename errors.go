package goTenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/session"
)

var (
	// ErrInvalidEmail rejects a malformed email before any backend call.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrMissingField rejects a form with a required field left blank.
	ErrMissingField = errors.New("required field missing")
	// ErrInvalidCode rejects a verification code that is not exactly 4 digits.
	ErrInvalidCode = errors.New("verification code must be 4 digits")
	// ErrPasswordMismatch rejects a reset whose confirmation differs.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrInvalidResetCode is returned for an unknown, used or expired reset link.
	ErrInvalidResetCode = errors.New("invalid or expired reset link")
	// ErrInvalidCredentials is returned for a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongPassword is returned when a password change names the wrong
	// current password.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrEmailNotVerified is returned by login for an unverified account.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrVerificationRejected is returned when the backend refuses a well-formed code.
	ErrVerificationRejected = errors.New("verification code rejected")
	// ErrUnsupportedProvider names a provider that is not Google or GitHub.
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	// ErrProviderConflict is returned when the email belongs to another sign-in method.
	ErrProviderConflict = errors.New("email registered with a different provider")
	// ErrAlreadyLinked is returned when the provider is already linked.
	ErrAlreadyLinked = errors.New("account already linked")
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotAuthenticated is returned by operations that need a session when there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned when the backend refuses a privileged call.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned for an unknown organization, member or provider link.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for duplicate names, emails or usernames.
	ErrConflict = errors.New("conflict")
	// ErrValidation is a backend validation failure; its message is shown verbatim.
	ErrValidation = errors.New("validation failed")
	// ErrTransient is returned when the backend could not be reached.
	ErrTransient = errors.New("backend unavailable")

	// ErrLastAdminLeave refuses leave for a caller holding the admin tag.
	ErrLastAdminLeave = errors.New("admins cannot leave an organization")
	// ErrSelfRoleEdit refuses editing the caller's own roles.
	ErrSelfRoleEdit = errors.New("cannot edit own roles")
	// ErrDuplicateRole rejects a tag that is already present.
	ErrDuplicateRole = errors.New("duplicate role")
	// ErrRoleInvalid rejects a malformed role tag.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrEmptyRoleSet rejects a role set without tags.
	ErrEmptyRoleSet = errors.New("role set must not be empty")
	// ErrKickAdmin refuses removing a member holding the admin tag.
	ErrKickAdmin = errors.New("admins cannot be removed")
	// ErrKickSelf refuses removing the caller through the member list.
	ErrKickSelf = errors.New("cannot remove yourself")
	// ErrSocialPasswordChange refuses password change for federated principals.
	ErrSocialPasswordChange = errors.New("password change unavailable for social accounts")
	// ErrInvalidOrgName rejects a blank organization name.
	ErrInvalidOrgName = errors.New("organization name required")

	// ErrInviteInvalid rejects a malformed invite request or an empty code.
	ErrInviteInvalid = errors.New("invalid invite")
	// ErrInviteNotFound is returned for an unknown or revoked invite code.
	ErrInviteNotFound = errors.New("invite not found")
	// ErrInviteExpired is returned for an invite past its expiry.
	ErrInviteExpired = errors.New("invite expired")
	// ErrInviteExhausted is returned for an invite with no uses left.
	ErrInviteExhausted = errors.New("invite has reached max uses")
	// ErrInviteWrongTarget is returned for a targeted invite redeemed by someone else.
	ErrInviteWrongTarget = errors.New("invite is for another user")
	// ErrAlreadyMember is returned when the caller already belongs to the organization.
	ErrAlreadyMember = errors.New("already a member")

	// ErrInvalidTransition is returned for an action not available in the current state.
	ErrInvalidTransition = errors.New("action not available in current state")
	// ErrBusy is returned while another call of the same component is in flight.
	ErrBusy = errors.New("operation in progress")
	// ErrStale is returned when Reset or Back superseded an in-flight call.
	ErrStale = errors.New("result discarded")
	// ErrClosed is returned by components after Close.
	ErrClosed = errors.New("component closed")
)

// ErrorKind groups errors by how they are presented.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrTransient, KindTransient},
	{ErrClosed, KindTransient},
	{ErrStale, KindTransient},

	{ErrInvalidCredentials, KindAuthentication},
	{ErrWrongPassword, KindAuthentication},
	{ErrEmailNotVerified, KindAuthentication},
	{ErrVerificationRejected, KindAuthentication},
	{ErrInvalidResetCode, KindAuthentication},
	{ErrProviderConflict, KindAuthentication},
	{ErrUnauthorized, KindAuthentication},
	{ErrNotAuthenticated, KindAuthentication},
	{ErrInviteNotFound, KindAuthentication},
	{ErrInviteExpired, KindAuthentication},
	{ErrInviteExhausted, KindAuthentication},
	{ErrInviteWrongTarget, KindAuthentication},

	{ErrLastAdminLeave, KindAuthorization},
	{ErrSelfRoleEdit, KindAuthorization},
	{ErrKickAdmin, KindAuthorization},
	{ErrKickSelf, KindAuthorization},
	{ErrSocialPasswordChange, KindAuthorization},
	{ErrForbidden, KindAuthorization},

	{ErrInvalidEmail, KindValidation},
	{ErrMissingField, KindValidation},
	{ErrInvalidCode, KindValidation},
	{ErrPasswordMismatch, KindValidation},
	{ErrUnsupportedProvider, KindValidation},
	{ErrAlreadyLinked, KindValidation},
	{ErrNotFound, KindValidation},
	{ErrConflict, KindValidation},
	{ErrValidation, KindValidation},
	{ErrDuplicateRole, KindValidation},
	{ErrRoleInvalid, KindValidation},
	{ErrEmptyRoleSet, KindValidation},
	{ErrInvalidOrgName, KindValidation},
	{ErrInviteInvalid, KindValidation},
	{ErrAlreadyMember, KindValidation},
	{ErrInvalidTransition, KindValidation},
	{ErrBusy, KindValidation},
}

// Classify returns the presentation kind of err.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindUnknown
}

var messages = map[error]string{
	ErrInvalidEmail:         "Please enter a valid email address.",
	ErrMissingField:         "Please fill in all required fields.",
	ErrInvalidCode:          "Enter the 4-digit code from your email.",
	ErrPasswordMismatch:     "Passwords do not match.",
	ErrInvalidResetCode:     "Invalid or expired reset link.",
	ErrInvalidCredentials:   "Invalid email or password.",
	ErrWrongPassword:        "Your current password is incorrect.",
	ErrEmailNotVerified:     "Please verify your email to continue. We sent you a code.",
	ErrVerificationRejected: "That verification code is not valid.",
	ErrUnsupportedProvider:  "That sign-in method is not supported.",
	ErrProviderConflict:     "This email is registered with a different sign-in method.",
	ErrAlreadyLinked:        "That account is already linked.",
	ErrUnauthorized:         "Your session has ended. Please sign in again.",
	ErrNotAuthenticated:     "Please sign in to continue.",
	ErrForbidden:            "You do not have permission to do that.",
	ErrLastAdminLeave:       "Admins cannot leave an organization. Transfer the admin role to another member first.",
	ErrSelfRoleEdit:         "You cannot change your own roles.",
	ErrDuplicateRole:        "That role is already assigned.",
	ErrRoleInvalid:          "Please enter a valid role name.",
	ErrEmptyRoleSet:         "A member needs at least one role.",
	ErrKickAdmin:            "Admins cannot be removed from an organization.",
	ErrKickSelf:             "Use leave to exit an organization.",
	ErrSocialPasswordChange: "Password change is not available for accounts that sign in with Google or GitHub.",
	ErrInvalidOrgName:       "Please enter an organization name.",
	ErrInviteInvalid:        "Please enter a valid invite.",
	ErrInviteNotFound:       "Invite not found.",
	ErrInviteExpired:        "This invite has expired.",
	ErrInviteExhausted:      "This invite has reached its maximum number of uses.",
	ErrInviteWrongTarget:    "This invite was issued to a different user.",
	ErrAlreadyMember:        "You are already a member of this organization.",
	ErrInvalidTransition:    "That action is not available right now.",
	ErrBusy:                 "Please wait for the current request to finish.",
	ErrTransient:            "Could not reach the server. Please try again.",
}

// UserMessage renders err for display. Backend validation failures are
// shown with the backend's own message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && gwErr.Message != "" {
			return gwErr.Message
		}
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			if msg, ok := messages[entry.err]; ok {
				return msg
			}
			break
		}
	}
	if Classify(err) == KindTransient {
		return messages[ErrTransient]
	}
	return "Something went wrong. Please try again."
}

var codeSentinels = map[gateway.Code]error{
	gateway.CodeValidation:         ErrValidation,
	gateway.CodeInvalidCredentials: ErrInvalidCredentials,
	gateway.CodeWrongPassword:      ErrWrongPassword,
	gateway.CodeEmailNotVerified:   ErrEmailNotVerified,
	gateway.CodeInvalidCode:        ErrVerificationRejected,
	gateway.CodeInvalidResetCode:   ErrInvalidResetCode,
	gateway.CodeAlreadyLinked:      ErrAlreadyLinked,
	gateway.CodeProviderConflict:   ErrProviderConflict,
	gateway.CodeUnauthorized:       ErrUnauthorized,
	gateway.CodeForbidden:          ErrForbidden,
	gateway.CodeLastAdmin:          ErrLastAdminLeave,
	gateway.CodeNotFound:           ErrNotFound,
	gateway.CodeConflict:           ErrConflict,
	gateway.CodeInviteNotFound:     ErrInviteNotFound,
	gateway.CodeInviteExpired:      ErrInviteExpired,
	gateway.CodeInviteExhausted:    ErrInviteExhausted,
	gateway.CodeInviteWrongTarget:  ErrInviteWrongTarget,
	gateway.CodeAlreadyMember:      ErrAlreadyMember,
	gateway.CodeUnavailable:        ErrTransient,
}

// mapGatewayError wraps a backend failure with its sentinel so both stay
// reachable through errors.Is and errors.As.
func mapGatewayError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrNoSession) {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	code := gateway.ErrorCode(err)
	if sentinel, ok := codeSentinels[code]; ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	if code == "" {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
