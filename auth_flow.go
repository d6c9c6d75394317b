package goTenant

import (
	"context"
	"sync"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/internal/flows"
)

// AuthFlow drives sign-in, signup, verification, password reset and
// federated login for one Client. The flow starts in
// [StateCollectingEmail] and ends in [StateAuthenticated], at which point
// the session has been saved.
//
// A failing step leaves the flow in the state it started from with an
// error notice attached. Calling [AuthFlow.Reset] or [AuthFlow.Back] while a
// step is in flight discards that step's result.
type AuthFlow struct {
	c *core

	mu         sync.Mutex
	state      AuthState
	origin     AuthState
	email      string
	password   string
	notice     Notice
	socialHint bool
	gen        uint64
	busy       bool
	closed     bool
}

// AuthSnapshot is an immutable view of the flow.
type AuthSnapshot struct {
	State      AuthState
	Email      string
	SocialHint bool
	Notice     Notice
	Submitting bool
}

type authInput struct {
	origin   AuthState
	email    string
	password string
}

func newAuthFlow(c *core) *AuthFlow {
	return &AuthFlow{c: c, state: StateCollectingEmail}
}

// Snapshot returns the current state of the flow.
func (f *AuthFlow) Snapshot() AuthSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return AuthSnapshot{
		State:      f.state,
		Email:      f.email,
		SocialHint: f.socialHint,
		Notice:     f.notice,
		Submitting: f.busy,
	}
}

// SubmitEmail probes email and moves to Login for a local account, Signup
// for an unknown address, or stays put with SocialHint set for an account
// that only signs in through Google or GitHub.
func (f *AuthFlow) SubmitEmail(ctx context.Context, email string) error {
	return f.run(ctx, flows.OpProbe, func() {
		f.email = flows.NormalizeEmail(email)
		f.socialHint = false
	}, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunProbe(ctx, in.email, deps)
	})
}

// Login signs in with the probed email. An unverified account moves the
// flow to Verification.
func (f *AuthFlow) Login(ctx context.Context, password string) error {
	return f.run(ctx, flows.OpLogin, func() {
		f.password = password
	}, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunLogin(ctx, in.email, in.password, deps)
	})
}

// Signup creates an unverified account for the probed email and moves to
// Verification. req.Email is ignored.
func (f *AuthFlow) Signup(ctx context.Context, req SignupRequest) error {
	return f.run(ctx, flows.OpSignup, func() {
		f.password = req.Password
	}, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		req.Email = in.email
		return flows.RunSignup(ctx, req, deps)
	})
}

// Verify submits the 4-digit code mailed at signup.
func (f *AuthFlow) Verify(ctx context.Context, code string) error {
	return f.run(ctx, flows.OpVerify, nil, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunVerify(ctx, in.email, code, in.password, deps)
	})
}

// ResendCode asks the backend for a fresh verification code.
func (f *AuthFlow) ResendCode(ctx context.Context) error {
	return f.run(ctx, flows.OpResend, nil, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunResend(ctx, in.email, deps)
	})
}

// BeginReset opens the reset request page.
func (f *AuthFlow) BeginReset() error {
	return f.jump(flows.OpBeginReset, StateResetRequest)
}

// RequestReset asks for a reset link. An empty email uses the probed one.
// The notice is the same whether or not the account exists.
func (f *AuthFlow) RequestReset(ctx context.Context, email string) error {
	return f.run(ctx, flows.OpRequestReset, func() {
		if email != "" {
			f.email = flows.NormalizeEmail(email)
		}
	}, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunRequestReset(ctx, in.email, deps)
	})
}

// BackToLogin leaves the reset request page. Without a probed email the
// flow returns to email collection instead.
func (f *AuthFlow) BackToLogin() error {
	return f.jump(flows.OpBackToLogin, StateLogin)
}

// ResetPassword completes a reset link with the code it carries.
func (f *AuthFlow) ResetPassword(ctx context.Context, code, newPassword, confirm string) error {
	return f.run(ctx, flows.OpResetPassword, nil, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunResetPassword(ctx, code, newPassword, confirm, in.origin, deps)
	})
}

// Federated signs in with a Google or GitHub credential in one round trip.
func (f *AuthFlow) Federated(ctx context.Context, provider Provider, credential string) error {
	return f.run(ctx, flows.OpFederated, func() {
		f.socialHint = false
	}, func(deps flows.AuthDeps, in authInput) (flows.AuthResult, error) {
		return flows.RunFederated(ctx, provider, credential, in.origin, deps)
	})
}

// Back returns to email collection. Any step in flight is discarded.
func (f *AuthFlow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	from := f.state
	if f.busy {
		from = f.origin
	}
	if !flows.Allowed(flows.OpBack, from) {
		return ErrInvalidTransition
	}
	f.gen++
	f.busy = false
	f.state = StateCollectingEmail
	f.password = ""
	f.socialHint = false
	f.notice = Notice{}
	return nil
}

// Reset returns the flow to its initial state and wipes credentials.
func (f *AuthFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.busy = false
	f.state = StateCollectingEmail
	f.email = ""
	f.password = ""
	f.socialHint = false
	f.notice = Notice{}
}

func (f *AuthFlow) markAuthenticated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.busy = false
	f.state = StateAuthenticated
	f.password = ""
	f.notice = Notice{}
}

func (f *AuthFlow) close() {
	f.mu.Lock()
	f.closed = true
	f.gen++
	f.password = ""
	f.mu.Unlock()
}

func (f *AuthFlow) jump(op flows.Op, target AuthState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.closed:
		return ErrClosed
	case f.busy:
		return ErrBusy
	case !flows.Allowed(op, f.state):
		return ErrInvalidTransition
	}
	if target == StateLogin && f.email == "" {
		target = StateCollectingEmail
	}
	f.state = target
	f.notice = Notice{}
	f.socialHint = false
	return nil
}

func (f *AuthFlow) run(
	ctx context.Context,
	op flows.Op,
	prepare func(),
	step func(flows.AuthDeps, authInput) (flows.AuthResult, error),
) error {
	f.mu.Lock()
	switch {
	case f.closed:
		f.mu.Unlock()
		return ErrClosed
	case f.busy:
		f.mu.Unlock()
		return ErrBusy
	case !flows.Allowed(op, f.state):
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	if prepare != nil {
		prepare()
	}
	in := authInput{origin: f.state, email: f.email, password: f.password}
	f.origin = f.state
	f.state = flows.InFlight(op)
	f.busy = true
	f.notice = Notice{}
	gen := f.gen
	f.mu.Unlock()

	res, err := step(f.deps(gen), in)

	f.mu.Lock()
	if f.closed || f.gen != gen {
		closed := f.closed
		f.mu.Unlock()
		f.c.discarded(ctx, "auth", op.String())
		if closed {
			return ErrClosed
		}
		return ErrStale
	}
	f.busy = false
	f.state = res.Next
	if f.state == StateLogin && f.email == "" {
		// Login needs a known email; a reset link opened cold has none.
		f.state = StateCollectingEmail
	}
	f.socialHint = res.SocialHint
	if err != nil {
		f.notice = errorNotice(err)
	} else {
		f.notice = infoNotice(res.Notice)
	}
	if res.Next != StateVerification {
		f.password = ""
	}
	f.mu.Unlock()
	return err
}

func (f *AuthFlow) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.gen == gen
}

func (f *AuthFlow) deps(gen uint64) flows.AuthDeps {
	c := f.c
	return flows.AuthDeps{
		ReplayPassword: c.cfg.Flow.ReplayPasswordAfterVerify,

		CheckEmail:           c.gw.CheckEmail,
		Login:                c.gw.Login,
		Signup:               c.gw.Signup,
		VerifyEmail:          c.gw.VerifyEmail,
		ResendVerification:   c.gw.ResendVerificationCode,
		RequestPasswordReset: c.gw.SendPasswordResetEmail,
		ResetPassword:        c.gw.ResetPassword,
		Federated:            c.gw.FederatedAuth,

		SaveSession: func(ctx context.Context, s gateway.Session) error {
			if !f.current(gen) {
				return ErrStale
			}
			return c.session.Save(ctx, s)
		},
		MapGatewayError: mapGatewayError,
		IsTransient: func(err error) bool {
			return Classify(err) == KindTransient
		},

		MetricInc: func(id int) { c.metricInc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, principalID string, err error, meta func() map[string]string) {
			c.emitAudit(ctx, event, success, principalID, "", err, meta)
		},

		Metrics: flows.AuthMetrics{
			ProbeSuccess:     int(MetricEmailProbeSuccess),
			ProbeFailure:     int(MetricEmailProbeFailure),
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			SignupSuccess:    int(MetricSignupSuccess),
			SignupFailure:    int(MetricSignupFailure),
			VerifySuccess:    int(MetricVerifySuccess),
			VerifyFailure:    int(MetricVerifyFailure),
			ResendRequest:    int(MetricVerificationResend),
			ResetRequest:     int(MetricPasswordResetRequest),
			ResetSuccess:     int(MetricPasswordResetSuccess),
			ResetFailure:     int(MetricPasswordResetFailure),
			FederatedSuccess: int(MetricFederatedSuccess),
			FederatedFailure: int(MetricFederatedFailure),
		},
		Events: flows.AuthEvents{
			Probe:         auditEventEmailProbe,
			LoginSuccess:  auditEventLoginSuccess,
			LoginFailure:  auditEventLoginFailure,
			Signup:        auditEventSignup,
			VerifySuccess: auditEventVerifySuccess,
			VerifyFailure: auditEventVerifyFailure,
			Resend:        auditEventVerificationResend,
			ResetRequest:  auditEventPasswordResetReq,
			ResetPassword: auditEventPasswordReset,
			Federated:     auditEventFederatedLogin,
		},
		Errors: flows.AuthErrors{
			InvalidEmail:        ErrInvalidEmail,
			MissingField:        ErrMissingField,
			InvalidCode:         ErrInvalidCode,
			PasswordMismatch:    ErrPasswordMismatch,
			InvalidResetCode:    ErrInvalidResetCode,
			EmailNotVerified:    ErrEmailNotVerified,
			UnsupportedProvider: ErrUnsupportedProvider,
			Transient:           ErrTransient,
		},
	}
}
