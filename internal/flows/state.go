package flows

// State is a node of the authentication state machine.
type State uint8

const (
	StateCollectingEmail State = iota
	StateCheckingEmail
	StateLogin
	StateSignup
	StateVerification
	StateResetRequest
	StateSubmitting
	StateAuthenticated
)

var stateNames = [...]string{
	StateCollectingEmail: "collecting_email",
	StateCheckingEmail:   "checking_email",
	StateLogin:           "login",
	StateSignup:          "signup",
	StateVerification:    "verification",
	StateResetRequest:    "reset_request",
	StateSubmitting:      "submitting",
	StateAuthenticated:   "authenticated",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Transient reports whether s only exists while a gateway call is in flight.
func (s State) Transient() bool {
	return s == StateCheckingEmail || s == StateSubmitting
}

// Op is a user action driving the machine.
type Op uint8

const (
	OpProbe Op = iota
	OpLogin
	OpSignup
	OpVerify
	OpResend
	OpBeginReset
	OpRequestReset
	OpResetPassword
	OpBackToLogin
	OpFederated
	OpBack
)

var opNames = [...]string{
	OpProbe:         "probe",
	OpLogin:         "login",
	OpSignup:        "signup",
	OpVerify:        "verify",
	OpResend:        "resend",
	OpBeginReset:    "begin_reset",
	OpRequestReset:  "request_reset",
	OpResetPassword: "reset_password",
	OpBackToLogin:   "back_to_login",
	OpFederated:     "federated",
	OpBack:          "back",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// origins lists the states each op may start from.
var origins = map[Op][]State{
	OpProbe:         {StateCollectingEmail},
	OpLogin:         {StateLogin},
	OpSignup:        {StateSignup},
	OpVerify:        {StateVerification},
	OpResend:        {StateVerification},
	OpBeginReset:    {StateLogin, StateCollectingEmail},
	OpRequestReset:  {StateResetRequest},
	OpResetPassword: {StateResetRequest, StateLogin, StateCollectingEmail},
	OpBackToLogin:   {StateResetRequest},
	OpFederated:     {StateCollectingEmail, StateLogin, StateSignup},
	OpBack:          {StateLogin, StateSignup, StateVerification, StateResetRequest},
}

// Allowed reports whether op may start from s.
func Allowed(op Op, s State) bool {
	for _, o := range origins[op] {
		if o == s {
			return true
		}
	}
	return false
}

// InFlight returns the transient state shown while op's gateway call runs.
func InFlight(op Op) State {
	if op == OpProbe {
		return StateCheckingEmail
	}
	return StateSubmitting
}
