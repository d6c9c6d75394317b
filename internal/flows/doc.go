// Package flows contains the pure-function steps of the authentication
// state machine.
//
// Each Run function (RunProbe, RunLogin, RunVerify, etc.) accepts an
// [AuthDeps] value and returns an [AuthResult] naming the next [State].
// The result is always populated, including on error, so the caller can
// apply it without a second lookup. Flows never hold state between calls.
//
// # Architecture boundaries
//
// Flow functions coordinate the backend gateway, the session owner, audit
// emission and metrics through function fields. Ownership of all of these
// stays with goTenant.AuthFlow, which also serializes calls, tracks the
// generation counter and discards stale results.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goTenant (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through AuthDeps.
package flows
