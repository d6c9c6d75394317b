package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goTenant/gateway"
)

var (
	errInvalidEmail     = errors.New("invalid email")
	errMissing          = errors.New("missing")
	errInvalidCode      = errors.New("invalid code")
	errMismatch         = errors.New("mismatch")
	errInvalidReset     = errors.New("invalid reset")
	errNotVerified      = errors.New("not verified")
	errUnsupported      = errors.New("unsupported provider")
	errTransient        = errors.New("transient")
	errBadCredentials   = errors.New("bad credentials")
	errPersist          = errors.New("persist")
	errUnexpectedCalled = errors.New("unexpected call")
)

type auditRecord struct {
	event   string
	success bool
}

type harness struct {
	deps    AuthDeps
	saved   []gateway.Session
	audits  []auditRecord
	metrics map[int]int
	calls   map[string]int
}

func newHarness() *harness {
	h := &harness{metrics: map[int]int{}, calls: map[string]int{}}
	h.deps = AuthDeps{
		ReplayPassword: true,
		CheckEmail: func(context.Context, string) (gateway.EmailStatus, error) {
			h.calls["check"]++
			return gateway.EmailStatus{}, nil
		},
		Login: func(context.Context, string, string) (gateway.Session, error) {
			h.calls["login"]++
			return gateway.Session{Token: "tok", PrincipalID: "1"}, nil
		},
		Signup: func(context.Context, gateway.SignupRequest) error {
			h.calls["signup"]++
			return nil
		},
		VerifyEmail: func(context.Context, string, string) (*gateway.Session, error) {
			h.calls["verify"]++
			return nil, nil
		},
		ResendVerification: func(context.Context, string) error {
			h.calls["resend"]++
			return nil
		},
		RequestPasswordReset: func(context.Context, string) error {
			h.calls["forgot"]++
			return nil
		},
		ResetPassword: func(context.Context, string, string) error {
			h.calls["reset"]++
			return nil
		},
		Federated: func(context.Context, gateway.Provider, string) (gateway.Session, error) {
			h.calls["federated"]++
			return gateway.Session{Token: "fed", PrincipalID: "2"}, nil
		},
		SaveSession: func(_ context.Context, s gateway.Session) error {
			h.saved = append(h.saved, s)
			return nil
		},
		MapGatewayError: func(err error) error {
			switch gateway.ErrorCode(err) {
			case gateway.CodeEmailNotVerified:
				return errNotVerified
			case gateway.CodeInvalidCredentials:
				return errBadCredentials
			case gateway.CodeUnavailable:
				return errTransient
			}
			return err
		},
		MetricInc: func(id int) { h.metrics[id]++ },
		EmitAudit: func(_ context.Context, event string, success bool, _ string, _ error, _ func() map[string]string) {
			h.audits = append(h.audits, auditRecord{event: event, success: success})
		},
		Metrics: AuthMetrics{
			ProbeSuccess: 1, ProbeFailure: 2, LoginSuccess: 3, LoginFailure: 4,
			SignupSuccess: 5, SignupFailure: 6, VerifySuccess: 7, VerifyFailure: 8,
			ResendRequest: 9, ResetRequest: 10, ResetSuccess: 11, ResetFailure: 12,
			FederatedSuccess: 13, FederatedFailure: 14,
		},
		Events: AuthEvents{
			Probe: "probe", LoginSuccess: "login_success", LoginFailure: "login_failure",
			Signup: "signup", VerifySuccess: "verify_success", VerifyFailure: "verify_failure",
			Resend: "resend", ResetRequest: "reset_request", ResetPassword: "reset_password",
			Federated: "federated",
		},
		Errors: AuthErrors{
			InvalidEmail: errInvalidEmail, MissingField: errMissing, InvalidCode: errInvalidCode,
			PasswordMismatch: errMismatch, InvalidResetCode: errInvalidReset,
			EmailNotVerified: errNotVerified, UnsupportedProvider: errUnsupported,
			Transient: errTransient,
		},
	}
	return h
}

func TestRunProbeRouting(t *testing.T) {
	tests := []struct {
		name   string
		status gateway.EmailStatus
		next   State
		social bool
	}{
		{"new", gateway.EmailStatus{}, StateSignup, false},
		{"local", gateway.EmailStatus{Exists: true}, StateLogin, false},
		{"social", gateway.EmailStatus{Exists: true, IsSocialUser: true}, StateCollectingEmail, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.deps.CheckEmail = func(context.Context, string) (gateway.EmailStatus, error) { return tt.status, nil }
			res, err := RunProbe(context.Background(), "  a@b.co ", h.deps)
			if err != nil {
				t.Fatalf("RunProbe: %v", err)
			}
			if res.Next != tt.next || res.SocialHint != tt.social {
				t.Fatalf("got %v social=%v", res.Next, res.SocialHint)
			}
		})
	}
}

func TestRunProbeValidatesBeforeDispatch(t *testing.T) {
	h := newHarness()
	for _, email := range []string{"", "plain", "a@b", "Name <a@b.co>", "a@.co", "a@b."} {
		res, err := RunProbe(context.Background(), email, h.deps)
		if !errors.Is(err, errInvalidEmail) || res.Next != StateCollectingEmail {
			t.Fatalf("%q: got %v %v", email, res.Next, err)
		}
	}
	if h.calls["check"] != 0 {
		t.Fatal("invalid email must not reach the gateway")
	}
}

func TestRunProbeGatewayFailure(t *testing.T) {
	h := newHarness()
	h.deps.CheckEmail = func(context.Context, string) (gateway.EmailStatus, error) {
		return gateway.EmailStatus{}, gateway.Unavailable(errors.New("dial"))
	}
	res, err := RunProbe(context.Background(), "a@b.co", h.deps)
	if !errors.Is(err, errTransient) || res.Next != StateCollectingEmail {
		t.Fatalf("got %v %v", res.Next, err)
	}
	if h.metrics[h.deps.Metrics.ProbeFailure] != 1 {
		t.Fatal("expected probe failure metric")
	}
}

func TestRunLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness()
		res, err := RunLogin(context.Background(), "a@b.co", "pw", h.deps)
		if err != nil || res.Next != StateAuthenticated || res.Session == nil {
			t.Fatalf("got %+v %v", res, err)
		}
		if len(h.saved) != 1 || h.saved[0].Token != "tok" {
			t.Fatalf("session not saved: %+v", h.saved)
		}
		if h.audits[len(h.audits)-1] != (auditRecord{"login_success", true}) {
			t.Fatalf("unexpected audit %+v", h.audits)
		}
	})
	t.Run("empty password", func(t *testing.T) {
		h := newHarness()
		if _, err := RunLogin(context.Background(), "a@b.co", "", h.deps); !errors.Is(err, errMissing) {
			t.Fatalf("got %v", err)
		}
		if h.calls["login"] != 0 {
			t.Fatal("must not dispatch")
		}
	})
	t.Run("not verified", func(t *testing.T) {
		h := newHarness()
		h.deps.Login = func(context.Context, string, string) (gateway.Session, error) {
			return gateway.Session{}, &gateway.Error{Status: 403, Code: gateway.CodeEmailNotVerified}
		}
		res, err := RunLogin(context.Background(), "a@b.co", "pw", h.deps)
		if !errors.Is(err, errNotVerified) || res.Next != StateVerification {
			t.Fatalf("got %v %v", res.Next, err)
		}
	})
	t.Run("bad credentials", func(t *testing.T) {
		h := newHarness()
		h.deps.Login = func(context.Context, string, string) (gateway.Session, error) {
			return gateway.Session{}, &gateway.Error{Status: 401, Code: gateway.CodeInvalidCredentials}
		}
		res, err := RunLogin(context.Background(), "a@b.co", "pw", h.deps)
		if !errors.Is(err, errBadCredentials) || res.Next != StateLogin {
			t.Fatalf("got %v %v", res.Next, err)
		}
		if len(h.saved) != 0 {
			t.Fatal("failure must not save a session")
		}
	})
	t.Run("persist failure", func(t *testing.T) {
		h := newHarness()
		h.deps.SaveSession = func(context.Context, gateway.Session) error { return errPersist }
		res, err := RunLogin(context.Background(), "a@b.co", "pw", h.deps)
		if !errors.Is(err, errPersist) || res.Next != StateLogin || res.Session != nil {
			t.Fatalf("got %+v %v", res, err)
		}
	})
}

func TestRunSignup(t *testing.T) {
	h := newHarness()
	var got gateway.SignupRequest
	h.deps.Signup = func(_ context.Context, req gateway.SignupRequest) error {
		got = req
		return nil
	}
	res, err := RunSignup(context.Background(), gateway.SignupRequest{Email: "a@b.co", FullName: " Al ", Username: " al ", Password: "pw"}, h.deps)
	if err != nil || res.Next != StateVerification {
		t.Fatalf("got %v %v", res.Next, err)
	}
	if got.FullName != "Al" || got.Username != "al" {
		t.Fatalf("expected trimmed request, got %+v", got)
	}
	if len(h.saved) != 0 {
		t.Fatal("signup must not authenticate")
	}

	for _, req := range []gateway.SignupRequest{
		{FullName: "", Username: "u", Password: "p"},
		{FullName: "n", Username: "  ", Password: "p"},
		{FullName: "n", Username: "u", Password: ""},
	} {
		res, err := RunSignup(context.Background(), req, h.deps)
		if !errors.Is(err, errMissing) || res.Next != StateSignup {
			t.Fatalf("%+v: got %v %v", req, res.Next, err)
		}
	}
}

func TestRunVerifyCodeValidation(t *testing.T) {
	h := newHarness()
	for _, code := range []string{"", "123", "12345", "12a4", "١٢٣٤"} {
		if _, err := RunVerify(context.Background(), "a@b.co", code, "pw", h.deps); !errors.Is(err, errInvalidCode) {
			t.Fatalf("%q: got %v", code, err)
		}
	}
	if h.calls["verify"] != 0 {
		t.Fatal("invalid codes must not reach the gateway")
	}
}

func TestRunVerifyPrefersVerificationSession(t *testing.T) {
	h := newHarness()
	h.deps.VerifyEmail = func(context.Context, string, string) (*gateway.Session, error) {
		return &gateway.Session{Token: "bound", PrincipalID: "1"}, nil
	}
	res, err := RunVerify(context.Background(), "a@b.co", "1234", "pw", h.deps)
	if err != nil || res.Next != StateAuthenticated {
		t.Fatalf("got %v %v", res.Next, err)
	}
	if h.calls["login"] != 0 {
		t.Fatal("password must not be replayed when verify returns a session")
	}
	if h.saved[0].Token != "bound" {
		t.Fatalf("unexpected saved session %+v", h.saved[0])
	}
}

func TestRunVerifyReplaysPassword(t *testing.T) {
	h := newHarness()
	res, err := RunVerify(context.Background(), "a@b.co", "1234", "pw", h.deps)
	if err != nil || res.Next != StateAuthenticated || h.calls["login"] != 1 {
		t.Fatalf("got %v %v logins=%d", res.Next, err, h.calls["login"])
	}
}

func TestRunVerifyWithoutReplayLandsOnLogin(t *testing.T) {
	h := newHarness()
	h.deps.ReplayPassword = false
	res, err := RunVerify(context.Background(), "a@b.co", "1234", "pw", h.deps)
	if err != nil || res.Next != StateLogin || res.Notice != NoticeVerified {
		t.Fatalf("got %+v %v", res, err)
	}
	if h.calls["login"] != 0 {
		t.Fatal("replay disabled")
	}
}

func TestRunVerifyReplayFailureMovesToLogin(t *testing.T) {
	h := newHarness()
	h.deps.Login = func(context.Context, string, string) (gateway.Session, error) {
		return gateway.Session{}, &gateway.Error{Code: gateway.CodeInvalidCredentials}
	}
	res, err := RunVerify(context.Background(), "a@b.co", "1234", "pw", h.deps)
	if !errors.Is(err, errBadCredentials) || res.Next != StateLogin {
		t.Fatalf("got %v %v", res.Next, err)
	}
}

func TestRunVerifyGatewayRejection(t *testing.T) {
	h := newHarness()
	h.deps.VerifyEmail = func(context.Context, string, string) (*gateway.Session, error) {
		return nil, &gateway.Error{Code: gateway.CodeInvalidCode}
	}
	res, err := RunVerify(context.Background(), "a@b.co", "1234", "pw", h.deps)
	if err == nil || res.Next != StateVerification {
		t.Fatalf("got %v %v", res.Next, err)
	}
	if h.metrics[h.deps.Metrics.VerifyFailure] != 1 {
		t.Fatal("expected verify failure metric")
	}
}

func TestRunResendStaysInVerification(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		res, err := RunResend(context.Background(), "a@b.co", h.deps)
		if err != nil || res.Next != StateVerification || res.Notice != NoticeCodeSent {
			t.Fatalf("got %+v %v", res, err)
		}
	}
	h.deps.ResendVerification = func(context.Context, string) error { return gateway.Unavailable(errors.New("x")) }
	res, err := RunResend(context.Background(), "a@b.co", h.deps)
	if !errors.Is(err, errTransient) || res.Next != StateVerification {
		t.Fatalf("got %v %v", res.Next, err)
	}
}

func TestRunRequestResetIsNeutral(t *testing.T) {
	outcomes := []error{nil, &gateway.Error{Code: gateway.CodeNotFound}, gateway.Unavailable(errors.New("x"))}
	for _, outcome := range outcomes {
		h := newHarness()
		h.deps.RequestPasswordReset = func(context.Context, string) error { return outcome }
		res, err := RunRequestReset(context.Background(), "a@b.co", h.deps)
		if err != nil || res.Next != StateResetRequest || res.Notice != NoticeResetSent {
			t.Fatalf("outcome %v: got %+v %v", outcome, res, err)
		}
	}

	h := newHarness()
	if _, err := RunRequestReset(context.Background(), "nope", h.deps); !errors.Is(err, errInvalidEmail) {
		t.Fatalf("got %v", err)
	}
}

func TestRunResetPassword(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		pw, conf string
		gwErr    error
		want     error
		next     State
	}{
		{"ok", "abc", "new", "new", nil, nil, StateLogin},
		{"mismatch", "abc", "new", "other", nil, errMismatch, StateResetRequest},
		{"missing", "abc", "", "", nil, errMissing, StateResetRequest},
		{"no code", " ", "new", "new", nil, errInvalidReset, StateResetRequest},
		{"rejected", "abc", "new", "new", &gateway.Error{Code: gateway.CodeInvalidResetCode}, errInvalidReset, StateResetRequest},
		{"validation", "abc", "new", "new", &gateway.Error{Code: gateway.CodeValidation}, errInvalidReset, StateResetRequest},
		{"transient", "abc", "new", "new", gateway.Unavailable(errors.New("x")), errTransient, StateResetRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.deps.ResetPassword = func(context.Context, string, string) error { return tt.gwErr }
			res, err := RunResetPassword(context.Background(), tt.code, tt.pw, tt.conf, StateResetRequest, h.deps)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
			} else if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if res.Next != tt.next {
				t.Fatalf("got state %v, want %v", res.Next, tt.next)
			}
		})
	}
}

func TestRunFederated(t *testing.T) {
	h := newHarness()
	res, err := RunFederated(context.Background(), gateway.ProviderGitHub, "code", StateCollectingEmail, h.deps)
	if err != nil || res.Next != StateAuthenticated || h.saved[0].Token != "fed" {
		t.Fatalf("got %+v %v", res, err)
	}

	h = newHarness()
	h.deps.Federated = func(context.Context, gateway.Provider, string) (gateway.Session, error) {
		return gateway.Session{}, errUnexpectedCalled
	}
	if _, err := RunFederated(context.Background(), gateway.ProviderLocal, "x", StateLogin, h.deps); !errors.Is(err, errUnsupported) {
		t.Fatalf("got %v", err)
	}
	if _, err := RunFederated(context.Background(), gateway.ProviderGoogle, " ", StateLogin, h.deps); !errors.Is(err, errMissing) {
		t.Fatalf("got %v", err)
	}
	res, err = RunFederated(context.Background(), gateway.ProviderGoogle, "tok", StateLogin, h.deps)
	if !errors.Is(err, errUnexpectedCalled) || res.Next != StateLogin {
		t.Fatalf("got %v %v", res.Next, err)
	}
}

func TestAllowedTransitions(t *testing.T) {
	if !Allowed(OpProbe, StateCollectingEmail) || Allowed(OpProbe, StateLogin) {
		t.Fatal("probe only from collecting email")
	}
	if !Allowed(OpBeginReset, StateLogin) || Allowed(OpLogin, StateSubmitting) {
		t.Fatal("unexpected transition table")
	}
	for _, op := range []Op{OpProbe, OpLogin, OpSignup, OpVerify, OpBack} {
		if Allowed(op, StateAuthenticated) {
			t.Fatalf("%v must not start from authenticated", op)
		}
	}
	if InFlight(OpProbe) != StateCheckingEmail || InFlight(OpLogin) != StateSubmitting {
		t.Fatal("unexpected in-flight state")
	}
	if StateResetRequest.String() != "reset_request" || State(99).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
