// Package goTenant is the client layer of a multi-tenant account and
// organization-membership service.
//
// A [Client] owns one session and four components operating on it:
//
//   - [AuthFlow] walks a principal from email entry to an authenticated
//     session through password login, signup with email verification,
//     password reset, or a Google or GitHub credential.
//   - [MembershipManager] lists, creates, joins and leaves organizations and
//     derives what the caller may do in each.
//   - [InviteLifecycle] mints, lists, revokes and redeems invite codes.
//   - [RoleEditor] edits member role sets and removes members.
//
// Account operations (profile, password change, account linking, logout)
// are methods on Client itself.
//
// # Architecture boundaries
//
// The backend is reached only through the gateway.Gateway interface and the
// session is persisted only through session.Store. Flow orchestration lives
// in internal/flows and is driven by function-field dependencies wired in
// this package.
//
// # Concurrency
//
// Components are safe for concurrent use. No component lock is held across
// a gateway call; results that arrive after Close, or after AuthFlow.Reset
// or AuthFlow.Back superseded the call, are discarded with ErrClosed or
// ErrStale.
//
// # Errors
//
// Backend failures are wrapped with one of the package sentinels, so
// errors.Is against ErrInvalidCredentials, ErrInviteExpired and friends
// works alongside errors.As to *gateway.Error. [Classify] and [UserMessage]
// turn any error into a presentation kind and a display string.
package goTenant
