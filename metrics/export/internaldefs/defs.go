package internaldefs

import (
	goTenant "github.com/MrEthical07/goTenant"
)

// Source is what both exporters read from. [goTenant.Client] satisfies it.
type Source interface {
	MetricsSnapshot() goTenant.MetricsSnapshot
	AuditDropped() uint64
}

// Reading is one consistent read of a Source.
type Reading struct {
	Snapshot     goTenant.MetricsSnapshot
	AuditDropped uint64
}

// Read takes a Reading from src.
func Read(src Source) Reading {
	return Reading{Snapshot: src.MetricsSnapshot(), AuditDropped: src.AuditDropped()}
}

// Empty reports whether nothing was recorded, as with metrics disabled.
func (r Reading) Empty() bool {
	return len(r.Snapshot.Counters) == 0 && len(r.Snapshot.Histograms) == 0 && r.AuditDropped == 0
}

// Label is one name="value" pair of a sample.
type Label struct {
	Name  string
	Value string
}

// Sample is one labeled series of a counter family.
type Sample struct {
	Labels []Label
	Value  func(Reading) uint64
}

// Family is a counter metric with one sample per label combination.
type Family struct {
	Name    string
	Help    string
	Samples []Sample
}

func counter(id goTenant.MetricID) func(Reading) uint64 {
	return func(r Reading) uint64 { return r.Snapshot.Counters[id] }
}

func labels(kv ...string) []Label {
	out := make([]Label, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Label{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func outcome(key, name string, success, failure goTenant.MetricID) []Sample {
	return []Sample{
		{Labels: labels(key, name, "result", "success"), Value: counter(success)},
		{Labels: labels(key, name, "result", "failure"), Value: counter(failure)},
	}
}

func concat(groups ...[]Sample) []Sample {
	var out []Sample
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Families lists every counter family in export order.
var Families = []Family{
	{
		Name: "gotenant_auth_steps_total",
		Help: "Sign-in flow steps by outcome.",
		Samples: concat(
			outcome("step", "email", goTenant.MetricEmailProbeSuccess, goTenant.MetricEmailProbeFailure),
			outcome("step", "login", goTenant.MetricLoginSuccess, goTenant.MetricLoginFailure),
			outcome("step", "signup", goTenant.MetricSignupSuccess, goTenant.MetricSignupFailure),
			outcome("step", "verify", goTenant.MetricVerifySuccess, goTenant.MetricVerifyFailure),
			outcome("step", "reset", goTenant.MetricPasswordResetSuccess, goTenant.MetricPasswordResetFailure),
			outcome("step", "federated", goTenant.MetricFederatedSuccess, goTenant.MetricFederatedFailure),
			[]Sample{
				{Labels: labels("step", "resend", "result", "sent"), Value: counter(goTenant.MetricVerificationResend)},
				{Labels: labels("step", "reset_request", "result", "sent"), Value: counter(goTenant.MetricPasswordResetRequest)},
			},
		),
	},
	{
		Name: "gotenant_account_ops_total",
		Help: "Account operations on the signed-in principal.",
		Samples: concat(
			outcome("op", "password_change", goTenant.MetricPasswordChangeSuccess, goTenant.MetricPasswordChangeFailure),
			[]Sample{
				{Labels: labels("op", "logout", "result", "success"), Value: counter(goTenant.MetricLogout)},
				{Labels: labels("op", "profile_update", "result", "success"), Value: counter(goTenant.MetricProfileUpdate)},
				{Labels: labels("op", "link", "result", "success"), Value: counter(goTenant.MetricAccountLinked)},
				{Labels: labels("op", "unlink", "result", "success"), Value: counter(goTenant.MetricAccountUnlinked)},
			},
		),
	},
	{
		Name: "gotenant_org_actions_total",
		Help: "Organization membership actions.",
		Samples: []Sample{
			{Labels: labels("action", "create"), Value: counter(goTenant.MetricOrgCreated)},
			{Labels: labels("action", "join"), Value: counter(goTenant.MetricOrgJoined)},
			{Labels: labels("action", "leave_armed"), Value: counter(goTenant.MetricOrgLeaveArmed)},
			{Labels: labels("action", "leave"), Value: counter(goTenant.MetricOrgLeft)},
			{Labels: labels("action", "leave_refused"), Value: counter(goTenant.MetricLeaveRefused)},
			{Labels: labels("action", "roles_change"), Value: counter(goTenant.MetricRolesChanged)},
			{Labels: labels("action", "member_remove"), Value: counter(goTenant.MetricMemberRemoved)},
		},
	},
	{
		Name: "gotenant_invite_ops_total",
		Help: "Invite operations.",
		Samples: []Sample{
			{Labels: labels("op", "create", "result", "success"), Value: counter(goTenant.MetricInviteCreated)},
			{Labels: labels("op", "revoke", "result", "success"), Value: counter(goTenant.MetricInviteRevoked)},
			{Labels: labels("op", "redeem", "result", "success"), Value: counter(goTenant.MetricInviteRedeemed)},
			{Labels: labels("op", "redeem", "result", "failure"), Value: counter(goTenant.MetricInviteRedeemFailure)},
		},
	},
	{
		Name: "gotenant_gateway_calls_total",
		Help: "Backend calls by outcome; unavailable covers transport failures and 5xx.",
		Samples: []Sample{
			{Labels: labels("outcome", "ok"), Value: func(r Reading) uint64 {
				return sub(r.Snapshot.Counters[goTenant.MetricGatewayCall], r.Snapshot.Counters[goTenant.MetricGatewayFailure])
			}},
			{Labels: labels("outcome", "rejected"), Value: func(r Reading) uint64 {
				return sub(r.Snapshot.Counters[goTenant.MetricGatewayFailure], r.Snapshot.Counters[goTenant.MetricGatewayTransient])
			}},
			{Labels: labels("outcome", "unavailable"), Value: counter(goTenant.MetricGatewayTransient)},
		},
	},
	{
		Name: "gotenant_discarded_results_total",
		Help: "Backend results dropped because their component was reset or closed first.",
		Samples: []Sample{
			{Labels: labels("component", "auth"), Value: counter(goTenant.MetricAuthResultDiscarded)},
			{Labels: labels("component", "memberships"), Value: counter(goTenant.MetricMembershipResultDiscarded)},
			{Labels: labels("component", "invites"), Value: counter(goTenant.MetricInviteResultDiscarded)},
			{Labels: labels("component", "roles"), Value: counter(goTenant.MetricRoleResultDiscarded)},
		},
	},
	{
		Name: "gotenant_audit_dropped_total",
		Help: "Audit events never delivered to the sink.",
		Samples: []Sample{
			{Value: func(r Reading) uint64 { return r.AuditDropped }},
		},
	},
}

// sub guards against counters read a few increments apart.
func sub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Latency is the gateway latency histogram.
var Latency = struct {
	ID   goTenant.MetricID
	Name string
	Help string
}{
	ID:   goTenant.MetricGatewayLatency,
	Name: "gotenant_gateway_latency_seconds",
	Help: "Backend call latency.",
}

// LatencyBounds are the finite bucket upper bounds in seconds.
var LatencyBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// LatencyBuckets returns cumulative counts for LatencyBounds followed by
// the +Inf total. Missing buckets count as zero.
func LatencyBuckets(r Reading) []uint64 {
	raw := r.Snapshot.Histograms[Latency.ID]
	out := make([]uint64, len(LatencyBounds)+1)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
