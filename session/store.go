package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by [Store.Load] when nothing is persisted.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned when a persisted blob cannot be decoded.
	ErrCorrupt = errors.New("session blob corrupt")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrStaleWrite is returned when a newer record was saved concurrently.
	ErrStaleWrite = errors.New("stale session write")
)

// Store persists the single client session record. Implementations must be
// safe for concurrent use.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, r *Record) error
	Clear(ctx context.Context) error
}

const minRecordTTL = time.Second

// saveIfNewerScript writes the blob unless the stored record is newer.
// KEYS[1] hash key; ARGV: blob, savedAt, ttl millis (0 = persist).
const saveIfNewerScript = `
local current = tonumber(redis.call("HGET", KEYS[1], "saved_at") or "0")
local incoming = tonumber(ARGV[2])
if current > incoming then
  return 0
end
redis.call("HSET", KEYS[1], "blob", ARGV[1], "saved_at", ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
else
  redis.call("PERSIST", KEYS[1])
end
return 1
`

var saveIfNewerLua = redis.NewScript(saveIfNewerScript)

// RedisStore keeps the session record in a Redis hash. The key expires with
// the bearer token when its expiry is known.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
	now   func() time.Time
}

// NewRedisStore returns a store for slot under prefix, e.g. "gt:sess:default".
func NewRedisStore(client redis.UniversalClient, prefix, slot string) *RedisStore {
	if prefix == "" {
		prefix = "gt:sess"
	}
	if slot == "" {
		slot = "default"
	}
	return &RedisStore{redis: client, key: prefix + ":" + slot, now: time.Now}
}

// Key returns the Redis key holding the record.
func (s *RedisStore) Key() string { return s.key }

// Load implements [Store].
func (s *RedisStore) Load(ctx context.Context) (*Record, error) {
	data, err := s.redis.HGet(ctx, s.key, "blob").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// Save implements [Store]. A record older than the stored one is rejected
// with ErrStaleWrite so a slow writer cannot resurrect a replaced session.
func (s *RedisStore) Save(ctx context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if r.ExpiresAt > 0 {
		ttl = time.Unix(r.ExpiresAt, 0).Sub(s.now())
		if ttl < minRecordTTL {
			ttl = minRecordTTL
		}
	}

	res, err := saveIfNewerLua.Run(ctx, s.redis, []string{s.key}, data, r.SavedAt, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrStaleWrite
	}
	return nil
}

// Clear implements [Store]. Clearing an empty store is not an error.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
