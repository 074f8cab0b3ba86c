package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when the addressed session key does not exist.
var ErrSessionNotFound = errors.New("session not found")

const (
	// DefaultPrefix is the key namespace used when none is configured.
	DefaultPrefix = "session"

	scanBatch = 100
)

// saveIfBelowScript performs the limit check and the write in one step.
// KEYS[1] session key, KEYS[2] identity index set.
// ARGV[1] session id, ARGV[2] blob, ARGV[3] ttl ms, ARGV[4] limit, ARGV[5] key prefix for members.
// Returns {1, count} when saved, {0, count} when the limit was already reached.
const saveIfBelowScript = `
local members = redis.call("SMEMBERS", KEYS[2])
local live = 0
for _, sid in ipairs(members) do
  if redis.call("EXISTS", ARGV[5] .. sid) == 1 then
    live = live + 1
  else
    redis.call("SREM", KEYS[2], sid)
  end
end
if live >= tonumber(ARGV[4]) then
  return {0, live}
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SADD", KEYS[2], ARGV[1])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < tonumber(ARGV[3]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[3])
end
return {1, live + 1}
`

var saveIfBelowLua = redis.NewScript(saveIfBelowScript)

// touchScript extends a session and, when present, the identity index so the
// index never expires before a member it tracks.
// KEYS[1] session key, KEYS[2] identity index set.
// ARGV[1] ttl ms, ARGV[2] replacement blob or "" to keep the payload.
// Returns 1 when the session existed.
const touchScript = `
local ok
if ARGV[2] ~= "" then
  ok = redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[1], "XX")
else
  ok = redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if not ok or ok == 0 then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  local ttl = redis.call("PTTL", KEYS[2])
  if ttl >= 0 and ttl < tonumber(ARGV[1]) then
    redis.call("PEXPIRE", KEYS[2], ARGV[1])
  end
end
return 1
`

var touchLua = redis.NewScript(touchScript)

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// An empty prefix falls back to [DefaultPrefix].
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

// Key returns the Redis key for one session.
func (s *Store) Key(role, identity, sessionID string) string {
	return s.identityPrefix(role, identity) + sessionID
}

func (s *Store) identityPrefix(role, identity string) string {
	return s.prefix + ":" + role + ":" + identity + ":"
}

func (s *Store) identityPattern(role, identity string) string {
	return escapeGlob(s.identityPrefix(role, identity)) + "*"
}

// indexKey is written by SaveIfBelow and kept alive by Touch and TouchAndStamp.
func (s *Store) indexKey(role, identity string) string {
	return s.prefix + "-idx:" + role + ":" + identity
}

// Save writes a session with the given TTL. It performs no limit check.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.Key(sess.Role, sess.Identity, sess.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SaveIfBelow writes the session only if fewer than limit sessions are live
// for its (role, identity). The check and the write run as one Lua script so
// concurrent callers cannot overshoot the limit, provided every session of the
// identity was written through SaveIfBelow and refreshed through Touch or
// TouchAndStamp. It returns whether the session was written and the live
// count observed by the script.
func (s *Store) SaveIfBelow(ctx context.Context, sess *Session, ttl time.Duration, limit int) (bool, int, error) {
	data, err := Encode(sess)
	if err != nil {
		return false, 0, err
	}

	res, err := saveIfBelowLua.Run(
		ctx,
		s.redis,
		[]string{s.Key(sess.Role, sess.Identity, sess.SessionID), s.indexKey(sess.Role, sess.Identity)},
		sess.SessionID,
		data,
		ttl.Milliseconds(),
		limit,
		s.identityPrefix(sess.Role, sess.Identity),
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return false, 0, fmt.Errorf("%w: invalid limit script response", ErrRedisUnavailable)
	}
	saved, _ := parts[0].(int64)
	live, _ := parts[1].(int64)
	return saved == 1, int(live), nil
}

// Get fetches one session. Missing keys yield [ErrSessionNotFound].
func (s *Store) Get(ctx context.Context, role, identity, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.Key(role, identity, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// Exists reports whether the session key is present. The payload is not read.
func (s *Store) Exists(ctx context.Context, role, identity, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.Key(role, identity, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Touch resets the TTL of a session without rewriting its payload.
func (s *Store) Touch(ctx context.Context, role, identity, sessionID string, ttl time.Duration) (bool, error) {
	return s.touch(ctx, role, identity, sessionID, ttl, nil)
}

func (s *Store) touch(ctx context.Context, role, identity, sessionID string, ttl time.Duration, blob []byte) (bool, error) {
	n, err := touchLua.Run(
		ctx,
		s.redis,
		[]string{s.Key(role, identity, sessionID), s.indexKey(role, identity)},
		ttl.Milliseconds(),
		string(blob),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// TouchAndStamp resets the TTL and rewrites LastActiveAt. The read and the
// write are separate commands; a concurrent delete in between resurrects
// nothing because the write uses SET XX.
func (s *Store) TouchAndStamp(ctx context.Context, role, identity, sessionID string, ttl time.Duration, now time.Time) (bool, error) {
	sess, err := s.Get(ctx, role, identity, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	sess.LastActiveAt = now.UTC()

	data, err := Encode(sess)
	if err != nil {
		return false, err
	}

	return s.touch(ctx, role, identity, sessionID, ttl, data)
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, role, identity, sessionID string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.Key(role, identity, sessionID))
		pipe.SRem(ctx, s.indexKey(role, identity), sessionID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return del.Val() > 0, nil
}

// DeleteAll removes every session of (role, identity) and returns how many
// keys were deleted. A session created between the scan and the delete
// survives; callers that need a hard cut can call DeleteAll again.
func (s *Store) DeleteAll(ctx context.Context, role, identity string) (int, error) {
	keys, err := s.scanKeys(ctx, role, identity)
	if err != nil {
		return 0, err
	}

	var del *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			del = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, s.indexKey(role, identity))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if del == nil {
		return 0, nil
	}
	return int(del.Val()), nil
}

// List returns the live sessions of (role, identity), newest login first.
// Keys that vanish between the scan and the fetch, and blobs that fail to
// decode, are skipped.
func (s *Store) List(ctx context.Context, role, identity string) ([]*Session, error) {
	keys, err := s.scanKeys(ctx, role, identity)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*Session{}, nil
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sess, err := Decode([]byte(raw))
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LoginAt.After(sessions[j].LoginAt)
	})
	return sessions, nil
}

// Count returns the number of session keys for (role, identity).
func (s *Store) Count(ctx context.Context, role, identity string) (int, error) {
	keys, err := s.scanKeys(ctx, role, identity)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) scanKeys(ctx context.Context, role, identity string) ([]string, error) {
	pattern := s.identityPattern(role, identity)
	var (
		cursor uint64
		keys   []string
	)

	for {
		batch, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return dedupe(keys), nil
}

// SCAN may return a key more than once.
func dedupe(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
