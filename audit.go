package goTenant

import (
	"context"
	"io"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/internal/audit"
	"github.com/google/uuid"
)

// AuditEvent is one audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

type FilterSink = audit.FilterSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewFilterSink forwards to next only the events keep accepts.
func NewFilterSink(next AuditSink, keep func(AuditEvent) bool) *FilterSink {
	return audit.NewFilterSink(next, keep)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

const (
	auditEventEmailProbe         = "email_probe"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventSignup             = "signup"
	auditEventVerifySuccess      = "verify_success"
	auditEventVerifyFailure      = "verify_failure"
	auditEventVerificationResend = "verification_resend"
	auditEventPasswordResetReq   = "password_reset_request"
	auditEventPasswordReset      = "password_reset"
	auditEventFederatedLogin     = "federated_login"
	auditEventLogout             = "logout"
	auditEventProfileUpdate      = "profile_update"
	auditEventPasswordChange     = "password_change"
	auditEventAccountLink        = "account_link"
	auditEventAccountUnlink      = "account_unlink"
	auditEventOrgCreate          = "org_create"
	auditEventOrgJoin            = "org_join"
	auditEventOrgLeave           = "org_leave"
	auditEventMemberRolesChange  = "member_roles_change"
	auditEventMemberRemove       = "member_remove"
	auditEventInviteCreate       = "invite_create"
	auditEventInviteRevoke       = "invite_revoke"
	auditEventInviteRedeem       = "invite_redeem"
	auditEventStaleResultDiscard = "stale_result_discarded"
)

// auditComponents names the component owning each event type.
var auditComponents = map[string]string{
	auditEventEmailProbe:         "auth",
	auditEventLoginSuccess:       "auth",
	auditEventLoginFailure:       "auth",
	auditEventSignup:             "auth",
	auditEventVerifySuccess:      "auth",
	auditEventVerifyFailure:      "auth",
	auditEventVerificationResend: "auth",
	auditEventPasswordResetReq:   "auth",
	auditEventPasswordReset:      "auth",
	auditEventFederatedLogin:     "auth",
	auditEventLogout:             "account",
	auditEventProfileUpdate:      "account",
	auditEventPasswordChange:     "account",
	auditEventAccountLink:        "account",
	auditEventAccountUnlink:      "account",
	auditEventOrgCreate:          "membership",
	auditEventOrgJoin:            "membership",
	auditEventOrgLeave:           "membership",
	auditEventMemberRolesChange:  "roles",
	auditEventMemberRemove:       "roles",
	auditEventInviteCreate:       "invites",
	auditEventInviteRevoke:       "invites",
	auditEventInviteRedeem:       "invites",
}

// auditErrorCode reports the backend code when there is one and the error
// kind otherwise, so raw messages never reach the sink.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := gateway.ErrorCode(err); code != "" {
		return string(code)
	}
	return Classify(err).String()
}

func (c *core) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	orgID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}
	if principalID == "" && c.session != nil {
		principalID = string(c.session.PrincipalID())
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	component := auditComponents[eventType]
	if component == "" && metadata != nil {
		// stale_result_discarded names its component in the metadata.
		component = metadata["component"]
	}

	event := AuditEvent{
		ID:          uuid.NewString(),
		Timestamp:   c.now().UTC(),
		EventType:   eventType,
		Component:   component,
		PrincipalID: principalID,
		OrgID:       orgID,
		RequestID:   gateway.RequestIDFromContext(ctx),
		Success:     success,
		Error:       auditErrorCode(err),
		Metadata:    metadata,
	}
	c.audit.Emit(ctx, event)
}
