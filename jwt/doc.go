// Package jwt reads and mints bearer tokens.
//
// [Inspect] is the client-side entry point: it extracts the principal id and
// expiry from a token without verifying it, which is enough to hydrate a
// persisted session and drop tokens that have visibly expired. [Manager]
// signs and verifies tokens for backends.
package jwt
