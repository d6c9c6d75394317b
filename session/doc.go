// Package session owns the client's persisted identity: the bearer token and
// the last known profile snapshot.
//
// # Storage
//
// A [Store] persists one [Record]. [RedisStore] keeps it in a Redis hash with
// a TTL bound to the token expiry and rejects stale writes with a Lua
// compare step; [FileStore] writes it atomically to disk; [MemoryStore] keeps
// it in process.
//
// # Binary encoding
//
// Records are stored in a compact versioned binary format (schema v1 and
// v2). The encoder is append-only: new versions add fields but never
// reinterpret old ones.
//
// # Manager
//
// [Manager] is the single writer. It enforces that a profile never outlives
// its token, drops expired tokens on [Manager.Init], and clears memory and
// storage together on [Manager.Logout].
package session
