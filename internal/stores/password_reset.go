package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultResetPrefix is the key namespace for reset tokens.
const DefaultResetPrefix = "password_reset"

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRecordCorrupt    = errors.New("reset record corrupt")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is stored as JSON under password_reset:{token}.
// Stakeholder is the role whose account is being reset.
type PasswordResetRecord struct {
	Email       string `json:"email"`
	Stakeholder string `json:"stakeholder"`
}

func (r *PasswordResetRecord) valid() bool {
	return r != nil && strings.TrimSpace(r.Email) != "" && strings.TrimSpace(r.Stakeholder) != ""
}

// saveResetLua writes the new token and retires the account's previous one.
// KEYS[1] token key, KEYS[2] account index; ARGV[1] payload, ARGV[2] ttl ms,
// ARGV[3] token, ARGV[4] key prefix.
var saveResetLua = redis.NewScript(`
local previous = redis.call("GET", KEYS[2])
if previous and previous ~= ARGV[3] then
  redis.call("DEL", ARGV[4] .. previous)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[2])
return 1
`)

// consumeResetLua is GETDEL plus cleanup of the account index when it still
// names this token. KEYS[1] token key; ARGV[1] index prefix, ARGV[2] token.
var consumeResetLua = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if not payload then
  return false
end
redis.call("DEL", KEYS[1])
local ok, record = pcall(cjson.decode, payload)
if ok and type(record) == "table" and record.stakeholder and record.email then
  local index = ARGV[1] .. record.stakeholder .. ":" .. record.email
  if redis.call("GET", index) == ARGV[2] then
    redis.call("DEL", index)
  end
end
return payload
`)

// PasswordResetStore keeps at most one live token per account: saving a new
// token deletes the one issued before it.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = DefaultResetPrefix
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *PasswordResetStore) indexPrefix() string {
	return s.prefix + "_idx:"
}

func (s *PasswordResetStore) indexKey(r *PasswordResetRecord) string {
	return s.indexPrefix() + r.Stakeholder + ":" + r.Email
}

// Save stores record under token and invalidates any earlier token for the
// same account.
func (s *PasswordResetStore) Save(ctx context.Context, token string, record *PasswordResetRecord, ttl time.Duration) error {
	if !record.valid() {
		return errors.New("reset record requires email and stakeholder")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	keys := []string{s.key(token), s.indexKey(record)}
	args := []any{data, ttl.Milliseconds(), token, s.prefix + ":"}
	if err := saveResetLua.Run(ctx, s.redis, keys, args...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Get returns the record without consuming it.
func (s *PasswordResetStore) Get(ctx context.Context, token string) (*PasswordResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	return decodeReset(data, err)
}

// Consume atomically reads and deletes the record, so a token works once.
func (s *PasswordResetStore) Consume(ctx context.Context, token string) (*PasswordResetRecord, error) {
	res, err := consumeResetLua.Run(ctx, s.redis, []string{s.key(token)}, s.indexPrefix(), token).Text()
	return decodeReset([]byte(res), err)
}

func decodeReset(data []byte, err error) (*PasswordResetRecord, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	var record PasswordResetRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRecordCorrupt, err)
	}
	if record.Email == "" || record.Stakeholder == "" {
		return nil, ErrResetRecordCorrupt
	}
	return &record, nil
}
