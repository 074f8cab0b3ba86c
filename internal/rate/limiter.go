package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy names a class of routes that share one budget.
type Policy string

const (
	PolicyDefault Policy = "default"
	PolicyStrict  Policy = "strict"
	PolicyAuth    Policy = "auth"
)

// DefaultPrefix is the counter key namespace used when none is configured.
const DefaultPrefix = "ratelimit"

// Rule is the budget of one policy: Max requests per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// DefaultRules returns the stock budgets: default 100/60s, strict 10/60s, auth 5/300s.
func DefaultRules() map[Policy]Rule {
	return map[Policy]Rule{
		PolicyDefault: {Max: 100, Window: time.Minute},
		PolicyStrict:  {Max: 10, Window: time.Minute},
		PolicyAuth:    {Max: 5, Window: 5 * time.Minute},
	}
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix string
	Rules  map[Policy]Rule
}

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the time left until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter enforces per-client fixed-window budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	rules  map[Policy]Rule
	now    func() time.Time
}

// New creates a rate [Limiter] backed by the given Redis client. Missing
// rules are filled from [DefaultRules].
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	rules := DefaultRules()
	for p, r := range cfg.Rules {
		rules[p] = r
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		rules:  rules,
		now:    time.Now,
	}
}

// Rule returns the budget configured for policy.
func (l *Limiter) Rule(policy Policy) (Rule, bool) {
	r, ok := l.rules[policy]
	return r, ok
}

// Consume counts one request for clientKey against policy and reports whether
// it fits in the current window.
func (l *Limiter) Consume(ctx context.Context, clientKey string, policy Policy) (Decision, error) {
	rule, ok := l.rules[policy]
	if !ok || rule.Max <= 0 || rule.Window <= 0 {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	count, ttl, err := l.incrementWithTTL(ctx, l.key(policy, clientKey), rule.Window)
	if err != nil {
		return Decision{}, err
	}

	remaining := rule.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(rule.Max),
		Limit:     rule.Max,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Reset clears the counter of clientKey for policy.
func (l *Limiter) Reset(ctx context.Context, clientKey string, policy Policy) error {
	if err := l.redis.Del(ctx, l.key(policy, clientKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(policy Policy, clientKey string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}
	return l.prefix + ":" + string(policy) + ":" + clientKey
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}

	count := incr.Val()
	ttl := pttl.Val()

	// Fixed-window semantics: the first hit opens the window. A counter that
	// lost its expiry is repaired the same way.
	if count == 1 || ttl < 0 {
		if err := l.redis.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
		}
		ttl = window
	}

	return count, ttl, nil
}
