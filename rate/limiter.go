package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy names a traffic class and its fixed-window budget.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Built-in policies. Callers may define their own; the limiter treats a
// policy as pure data.
var (
	PolicyAuth  = Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	PolicyAPI   = Policy{Name: "api", Limit: 100, Window: time.Minute}
	PolicyAdmin = Policy{Name: "admin", Limit: 50, Window: 5 * time.Minute}
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces per-policy, per-identity budgets using Redis counters.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Counter check and increment must be one atomic step; two racing
// requests at the boundary must not both pass.
var allowScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if count >= limit then
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl < 0 then
		ttl = tonumber(ARGV[2])
	end
	return {0, count, ttl}
end
count = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return {1, count, 0}
`)

// Allow records one request for identity under p and reports whether the
// budget admits it. Rejected requests are not counted and do not extend
// the window.
func (l *Limiter) Allow(ctx context.Context, p Policy, identity string) (Decision, error) {
	if p.Name == "" || p.Limit <= 0 || p.Window <= 0 {
		return Decision{}, ErrUnknownPolicy
	}
	if identity == "" {
		identity = "unknown"
	}

	res, err := allowScript.Run(ctx, l.redis,
		[]string{counterKey(p, identity)},
		p.Limit, p.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: malformed script reply", ErrStoreUnavailable)
	}

	d := Decision{
		Allowed:    res[0] == 1,
		Remaining:  p.Limit - int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// Reset clears the counter for identity under p. Used when a stronger
// signal (successful authentication) supersedes the throttle.
func (l *Limiter) Reset(ctx context.Context, p Policy, identity string) error {
	if err := l.redis.Del(ctx, counterKey(p, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Peek returns the current counter without consuming budget. Missing
// keys return zero and do not reveal identity existence.
func (l *Limiter) Peek(ctx context.Context, p Policy, identity string) (int, error) {
	count, err := l.redis.Get(ctx, counterKey(p, identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func counterKey(p Policy, identity string) string {
	return "rl:" + p.Name + ":" + identity
}
