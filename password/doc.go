// Package password hashes and verifies credentials with argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// The client never hashes passwords; this package backs the in-process
// reference backend in gateway/gatewaytest, which stores credentials the
// way a real server would.
package password
