package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goTenant/gateway"
)

// Notices shown after informational transitions.
const (
	NoticeCodeSent       = "A new verification code has been sent."
	NoticeResetSent      = "If an account exists for that email, a reset link has been sent."
	NoticeVerified       = "Email verified. Please sign in."
	NoticePasswordReset  = "Password updated. Please sign in."
	NoticeSocialAccount  = "This email belongs to a social account. Continue with Google or GitHub."
	NoticeCheckYourEmail = "Check your email for a verification code."
)

type AuthMetrics struct {
	ProbeSuccess     int
	ProbeFailure     int
	LoginSuccess     int
	LoginFailure     int
	SignupSuccess    int
	SignupFailure    int
	VerifySuccess    int
	VerifyFailure    int
	ResendRequest    int
	ResetRequest     int
	ResetSuccess     int
	ResetFailure     int
	FederatedSuccess int
	FederatedFailure int
}

type AuthEvents struct {
	Probe         string
	LoginSuccess  string
	LoginFailure  string
	Signup        string
	VerifySuccess string
	VerifyFailure string
	Resend        string
	ResetRequest  string
	ResetPassword string
	Federated     string
}

type AuthErrors struct {
	InvalidEmail        error
	MissingField        error
	InvalidCode         error
	PasswordMismatch    error
	InvalidResetCode    error
	EmailNotVerified    error
	UnsupportedProvider error
	Transient           error
}

// AuthDeps wires the auth flows to a backend and a session owner.
type AuthDeps struct {
	// ReplayPassword logs in with the retained password after a verify
	// call that did not return a session.
	ReplayPassword bool

	CheckEmail           func(context.Context, string) (gateway.EmailStatus, error)
	Login                func(context.Context, string, string) (gateway.Session, error)
	Signup               func(context.Context, gateway.SignupRequest) error
	VerifyEmail          func(context.Context, string, string) (*gateway.Session, error)
	ResendVerification   func(context.Context, string) error
	RequestPasswordReset func(context.Context, string) error
	ResetPassword        func(context.Context, string, string) error
	Federated            func(context.Context, gateway.Provider, string) (gateway.Session, error)

	SaveSession     func(context.Context, gateway.Session) error
	MapGatewayError func(error) error
	IsTransient     func(error) bool

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics AuthMetrics
	Events  AuthEvents
	Errors  AuthErrors
}

// AuthResult is the outcome of one flow step. Next is always set, also
// when an error is returned.
type AuthResult struct {
	Next       State
	Notice     string
	SocialHint bool
	Session    *gateway.Session
}

// RunProbe classifies email and picks the next page.
func RunProbe(ctx context.Context, email string, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: StateCollectingEmail}

	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return res, deps.Errors.InvalidEmail
	}

	status, err := deps.CheckEmail(ctx, email)
	if err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.ProbeFailure)
		deps.EmitAudit(ctx, deps.Events.Probe, false, "", mapped, nil)
		return res, mapped
	}
	deps.MetricInc(deps.Metrics.ProbeSuccess)

	switch {
	case status.Exists && status.IsSocialUser:
		res.SocialHint = true
		res.Notice = NoticeSocialAccount
	case status.Exists:
		res.Next = StateLogin
	default:
		res.Next = StateSignup
	}
	return res, nil
}

// RunLogin authenticates with a password. An unverified account moves the
// flow to verification.
func RunLogin(ctx context.Context, email, password string, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: StateLogin}

	if password == "" {
		return res, deps.Errors.MissingField
	}

	sess, err := deps.Login(ctx, email, password)
	if err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", mapped, func() map[string]string {
			return map[string]string{"email": email}
		})
		if errors.Is(mapped, deps.Errors.EmailNotVerified) {
			res.Next = StateVerification
		}
		return res, mapped
	}
	return authenticated(ctx, sess, res, deps, deps.Events.LoginSuccess, deps.Metrics.LoginSuccess, deps.Metrics.LoginFailure)
}

// RunSignup provisions an unverified account.
func RunSignup(ctx context.Context, req gateway.SignupRequest, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: StateSignup}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.TrimSpace(req.Username)
	if req.FullName == "" || req.Username == "" || req.Password == "" {
		return res, deps.Errors.MissingField
	}

	if err := deps.Signup(ctx, req); err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.SignupFailure)
		deps.EmitAudit(ctx, deps.Events.Signup, false, "", mapped, func() map[string]string {
			return map[string]string{"email": req.Email, "username": req.Username}
		})
		return res, mapped
	}

	deps.MetricInc(deps.Metrics.SignupSuccess)
	deps.EmitAudit(ctx, deps.Events.Signup, true, "", nil, func() map[string]string {
		return map[string]string{"email": req.Email, "username": req.Username}
	})
	res.Next = StateVerification
	res.Notice = NoticeCheckYourEmail
	return res, nil
}

// RunVerify confirms a verification code and signs the principal in.
func RunVerify(ctx context.Context, email, code, password string, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: StateVerification}

	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return res, deps.Errors.InvalidCode
	}

	sess, err := deps.VerifyEmail(ctx, email, code)
	if err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.VerifyFailure, false, "", mapped, func() map[string]string {
			return map[string]string{"email": email}
		})
		return res, mapped
	}
	deps.MetricInc(deps.Metrics.VerifySuccess)

	if sess != nil && sess.Token != "" {
		return authenticated(ctx, *sess, res, deps, deps.Events.VerifySuccess, deps.Metrics.LoginSuccess, deps.Metrics.LoginFailure)
	}

	if !deps.ReplayPassword || password == "" {
		deps.EmitAudit(ctx, deps.Events.VerifySuccess, true, "", nil, func() map[string]string {
			return map[string]string{"email": email, "session": "none"}
		})
		res.Next = StateLogin
		res.Notice = NoticeVerified
		return res, nil
	}

	login, err := deps.Login(ctx, email, password)
	if err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", mapped, func() map[string]string {
			return map[string]string{"email": email, "after": "verify"}
		})
		// The code was consumed, so a retry belongs on the login page.
		res.Next = StateLogin
		return res, mapped
	}
	return authenticated(ctx, login, res, deps, deps.Events.VerifySuccess, deps.Metrics.LoginSuccess, deps.Metrics.LoginFailure)
}

// RunResend asks for a fresh verification code. The flow never leaves
// verification.
func RunResend(ctx context.Context, email string, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: StateVerification}

	deps.MetricInc(deps.Metrics.ResendRequest)
	if err := deps.ResendVerification(ctx, email); err != nil {
		mapped := deps.MapGatewayError(err)
		deps.EmitAudit(ctx, deps.Events.Resend, false, "", mapped, nil)
		return res, mapped
	}
	deps.EmitAudit(ctx, deps.Events.Resend, true, "", nil, nil)
	res.Notice = NoticeCodeSent
	return res, nil
}

// RunRequestReset sends a reset link. The outcome is never revealed so the
// page cannot be used to probe for accounts; only a malformed email fails.
func RunRequestReset(ctx context.Context, email string, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: StateResetRequest}

	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return res, deps.Errors.InvalidEmail
	}

	deps.MetricInc(deps.Metrics.ResetRequest)
	err := deps.RequestPasswordReset(ctx, email)
	var mapped error
	if err != nil {
		mapped = deps.MapGatewayError(err)
	}
	deps.EmitAudit(ctx, deps.Events.ResetRequest, err == nil, "", mapped, nil)
	res.Notice = NoticeResetSent
	return res, nil
}

// RunResetPassword completes a reset link. Any backend rejection other
// than a transport failure reads as an invalid link.
func RunResetPassword(ctx context.Context, code, newPassword, confirm string, from State, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: from}

	code = strings.TrimSpace(code)
	if newPassword == "" || confirm == "" {
		return res, deps.Errors.MissingField
	}
	if newPassword != confirm {
		return res, deps.Errors.PasswordMismatch
	}
	if code == "" {
		return res, deps.Errors.InvalidResetCode
	}

	if err := deps.ResetPassword(ctx, code, newPassword); err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.ResetPassword, false, "", mapped, nil)
		if deps.IsTransient(mapped) {
			return res, mapped
		}
		return res, errors.Join(deps.Errors.InvalidResetCode, err)
	}

	deps.MetricInc(deps.Metrics.ResetSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetPassword, true, "", nil, nil)
	res.Next = StateLogin
	res.Notice = NoticePasswordReset
	return res, nil
}

// RunFederated signs in with a Google or GitHub credential.
func RunFederated(ctx context.Context, provider gateway.Provider, credential string, from State, deps AuthDeps) (AuthResult, error) {
	normalizeAuthDeps(&deps)
	res := AuthResult{Next: from}

	if !provider.Federated() {
		return res, deps.Errors.UnsupportedProvider
	}
	if strings.TrimSpace(credential) == "" {
		return res, deps.Errors.MissingField
	}

	sess, err := deps.Federated(ctx, provider, credential)
	if err != nil {
		mapped := deps.MapGatewayError(err)
		deps.MetricInc(deps.Metrics.FederatedFailure)
		deps.EmitAudit(ctx, deps.Events.Federated, false, "", mapped, func() map[string]string {
			return map[string]string{"provider": string(provider)}
		})
		return res, mapped
	}
	return authenticated(ctx, sess, res, deps, deps.Events.Federated, deps.Metrics.FederatedSuccess, deps.Metrics.FederatedFailure)
}

func authenticated(ctx context.Context, sess gateway.Session, res AuthResult, deps AuthDeps, event string, success, failure int) (AuthResult, error) {
	if err := deps.SaveSession(ctx, sess); err != nil {
		deps.MetricInc(failure)
		deps.EmitAudit(ctx, event, false, string(sess.PrincipalID), err, func() map[string]string {
			return map[string]string{"reason": "session_persist"}
		})
		return res, err
	}

	principal := string(sess.PrincipalID)
	if principal == "" && sess.Profile != nil {
		principal = string(sess.Profile.ID)
	}
	deps.MetricInc(success)
	deps.EmitAudit(ctx, event, true, principal, nil, nil)

	res.Next = StateAuthenticated
	res.Notice = ""
	res.Session = &sess
	return res, nil
}

func normalizeAuthDeps(deps *AuthDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.MapGatewayError == nil {
		deps.MapGatewayError = func(err error) error { return err }
	}
	if deps.IsTransient == nil {
		deps.IsTransient = func(err error) bool {
			return errors.Is(err, deps.Errors.Transient) || gateway.ErrorCode(err) == gateway.CodeUnavailable
		}
	}
	if deps.SaveSession == nil {
		deps.SaveSession = func(context.Context, gateway.Session) error { return nil }
	}
}
