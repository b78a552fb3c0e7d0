package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shahdco/authcore/internal"
)

const (
	rowPrefix   = "rt:"
	indexPrefix = "art:"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

type tokenRecord struct {
	AccountID  string `json:"account_id"`
	IssuedAt   int64  `json:"issued_at"`
	ExpiresAt  int64  `json:"expires_at"`
	RevokedAt  int64  `json:"revoked_at"`
	ReplacedBy string `json:"replaced_by"`
}

// Revoke-old and create-successor must be one step: two clients racing
// on the same value must see exactly one winner, and the loser must
// observe an already-revoked row.
const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
local ok, rec = pcall(cjson.decode, data)
if not ok or not rec.account_id then
  return {4}
end
local now = tonumber(ARGV[1])
if rec.revoked_at and rec.revoked_at > 0 then
  return {2}
end
if rec.expires_at <= now then
  return {1}
end

rec.revoked_at = now
rec.replaced_by = ARGV[2]
redis.call("SET", KEYS[1], cjson.encode(rec), "KEEPTTL")

local succ = {
  account_id = rec.account_id,
  issued_at = now,
  expires_at = tonumber(ARGV[3]),
  revoked_at = 0,
  replaced_by = "",
}
redis.call("SET", KEYS[2], cjson.encode(succ), "PX", tonumber(ARGV[4]))
redis.call("SADD", ARGV[5] .. rec.account_id, ARGV[2])

return {3, rec.account_id}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ok, rec = pcall(cjson.decode, data)
if not ok then
  return -1
end
if rec.revoked_at and rec.revoked_at > 0 then
  return 2
end
rec.revoked_at = tonumber(ARGV[1])
redis.call("SET", KEYS[1], cjson.encode(rec), "KEEPTTL")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, h in ipairs(hashes) do
  local key = ARGV[2] .. h
  local data = redis.call("GET", key)
  if data then
    local ok, rec = pcall(cjson.decode, data)
    if ok and (not rec.revoked_at or rec.revoked_at == 0) then
      rec.revoked_at = tonumber(ARGV[1])
      redis.call("SET", key, cjson.encode(rec), "KEEPTTL")
      revoked = revoked + 1
    end
  else
    redis.call("SREM", KEYS[1], h)
  end
end
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore is the Redis-backed [Store]. Rows live until expiry plus the
// retention window; the per-account index set is pruned lazily.
type RedisStore struct {
	redis     redis.UniversalClient
	retention time.Duration
}

// NewRedisStore creates a ledger [RedisStore]. retention controls how long
// revoked or expired rows remain readable after their expiry instant.
func NewRedisStore(redisClient redis.UniversalClient, retention time.Duration) *RedisStore {
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{redis: redisClient, retention: retention}
}

func rowKey(hash string) string {
	return rowPrefix + hash
}

func indexKey(accountID string) string {
	return indexPrefix + accountID
}

// Create persists a fresh token row and registers it in the account index.
func (s *RedisStore) Create(ctx context.Context, t Token) error {
	if t.Value == "" || t.AccountID == "" {
		return errors.New("ledger: token value and account id are required")
	}

	rec := tokenRecord{
		AccountID: t.AccountID,
		IssuedAt:  t.IssuedAt.Unix(),
		ExpiresAt: t.ExpiresAt.Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	hash := internal.HashRefreshValue(t.Value)
	ttl := time.Until(t.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rowKey(hash), data, ttl)
		pipe.SAdd(ctx, indexKey(t.AccountID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get reads the row for a client-held value. The returned Token has an
// empty Value.
func (s *RedisStore) Get(ctx context.Context, value string) (Token, error) {
	data, err := s.redis.Get(ctx, rowKey(internal.HashRefreshValue(value))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, ErrNotFound
		}
		return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Token{}, ErrCorrupt
	}
	return recordToToken(rec), nil
}

// Rotate atomically revokes oldValue and creates newValue as its successor.
// The returned Token is the successor row, Value included.
func (s *RedisStore) Rotate(ctx context.Context, oldValue, newValue string, expiresAt time.Time) (Token, error) {
	now := time.Now()
	newHash := internal.HashRefreshValue(newValue)
	ttl := expiresAt.Sub(now) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{rowKey(internal.HashRefreshValue(oldValue)), rowKey(newHash)},
		now.Unix(), newHash, expiresAt.Unix(), ttl.Milliseconds(), indexPrefix,
	).Slice()
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) == 0 {
		return Token{}, fmt.Errorf("%w: empty script reply", ErrStoreUnavailable)
	}

	status, ok := res[0].(int64)
	if !ok {
		return Token{}, fmt.Errorf("%w: malformed script reply", ErrStoreUnavailable)
	}

	switch status {
	case rotateStatusRotated:
		accountID, _ := res[1].(string)
		return Token{
			Value:     newValue,
			AccountID: accountID,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}, nil
	case rotateStatusNotFound:
		return Token{}, ErrNotFound
	case rotateStatusExpired:
		return Token{}, ErrExpired
	case rotateStatusRevoked:
		return Token{}, ErrRevoked
	default:
		return Token{}, ErrCorrupt
	}
}

// Revoke marks a single row revoked. Revoking a missing or already
// revoked row is not an error.
func (s *RedisStore) Revoke(ctx context.Context, value string) error {
	status, err := revokeLua.Run(ctx, s.redis,
		[]string{rowKey(internal.HashRefreshValue(value))},
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if status < 0 {
		return ErrCorrupt
	}
	return nil
}

// RevokeAll revokes every active row for an account and returns how many
// rows flipped.
func (s *RedisStore) RevokeAll(ctx context.Context, accountID string) (int, error) {
	revoked, err := revokeAllLua.Run(ctx, s.redis,
		[]string{indexKey(accountID)},
		time.Now().Unix(), rowPrefix,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(revoked), nil
}

func recordToToken(rec tokenRecord) Token {
	t := Token{
		AccountID:  rec.AccountID,
		IssuedAt:   time.Unix(rec.IssuedAt, 0),
		ExpiresAt:  time.Unix(rec.ExpiresAt, 0),
		ReplacedBy: rec.ReplacedBy,
	}
	if rec.RevokedAt > 0 {
		t.RevokedAt = time.Unix(rec.RevokedAt, 0)
	}
	return t
}
