// Package ratelimit enforces several fixed-window quotas at once on Redis.
//
// A call to [Limiter.Allow] passes only when every rule has headroom. The check
// and the increments run in one Lua script, so concurrent callers can never
// overshoot a ceiling and a denied call consumes nothing.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimitExceeded is matched by every *DeniedError.
var ErrLimitExceeded = errors.New("ratelimit: limit exceeded")

// ErrInvalidRule is returned for rules without a key, limit or window.
var ErrInvalidRule = errors.New("ratelimit: invalid rule")

// Rule is one quota: at most Limit hits per Window for the counter Key.
type Rule struct {
	Name   string // scope reported on denial, e.g. "recipient"
	Key    string // counter identity, e.g. "recipient:jane@example.com"
	Limit  int
	Window time.Duration
}

// DeniedError reports the first saturated rule.
type DeniedError struct {
	Rule       string
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("ratelimit: %s limit of %d reached, retry after %s", e.Rule, e.Limit, e.RetryAfter)
}

// Is makes errors.Is(err, ErrLimitExceeded) true.
func (e *DeniedError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Checks all counters before touching any, then increments all of them.
// KEYS: one counter per rule. ARGV: limit and ttl (ms) per rule.
// Returns {0, 0} when allowed or {rule index (1-based), current count} on denial.
const allowScript = `
for i, key in ipairs(KEYS) do
	local limit = tonumber(ARGV[i * 2 - 1])
	local current = tonumber(redis.call("GET", key) or "0")
	if current + 1 > limit then
		return {i, current}
	end
end

for i, key in ipairs(KEYS) do
	local ttl = tonumber(ARGV[i * 2])
	if redis.call("INCR", key) == 1 then
		redis.call("PEXPIRE", key, ttl)
	end
end

return {0, 0}
`

// Limiter evaluates rules against Redis counters.
type Limiter struct {
	client redis.Cmdable
	script *redis.Script
	prefix string
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPrefix sets the Redis key prefix (default "ratelimit").
func WithPrefix(prefix string) Option {
	return func(l *Limiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithClock overrides the time source used for window bucketing.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter backed by client.
func New(client redis.Cmdable, opts ...Option) *Limiter {
	l := &Limiter{
		client: client,
		script: redis.NewScript(allowScript),
		prefix: "ratelimit",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one hit against every rule when all of them have headroom.
// It returns a *DeniedError naming the first saturated rule otherwise.
// Any other error means Redis could not be consulted.
func (l *Limiter) Allow(ctx context.Context, rules ...Rule) error {
	if len(rules) == 0 {
		return nil
	}

	now := l.now()
	keys := make([]string, len(rules))
	args := make([]any, 0, len(rules)*2)
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return err
		}
		keys[i] = l.key(r, now)
		// TTL outlives the window by a second to absorb clock skew between workers.
		args = append(args, r.Limit, (r.Window + time.Second).Milliseconds())
	}

	res, err := l.script.Run(ctx, l.client, keys, args...).Int64Slice()
	if err != nil {
		return fmt.Errorf("ratelimit: run script: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	if res[0] == 0 {
		return nil
	}

	denied := rules[res[0]-1]
	return &DeniedError{
		Rule:       denied.Name,
		Count:      res[1],
		Limit:      denied.Limit,
		RetryAfter: retryAfter(denied.Window, now),
	}
}

// Usage returns the current count of every rule without recording a hit.
func (l *Limiter) Usage(ctx context.Context, rules ...Rule) ([]int64, error) {
	now := l.now()
	pipe := l.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(rules))
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		cmds[i] = pipe.Get(ctx, l.key(r, now))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("ratelimit: read usage: %w", err)
	}

	counts := make([]int64, len(rules))
	for i, cmd := range cmds {
		n, err := cmd.Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("ratelimit: read usage: %w", err)
		}
		counts[i] = n
	}
	return counts, nil
}

func (l *Limiter) key(r Rule, now time.Time) string {
	bucket := now.UnixNano() / int64(r.Window)
	return l.prefix + ":" + r.Key + ":" + strconv.FormatInt(bucket, 10)
}

func (r Rule) validate() error {
	if r.Key == "" || r.Limit <= 0 || r.Window <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRule, r.Name)
	}
	return nil
}

// retryAfter is the time left until the current window of size w ends.
func retryAfter(w time.Duration, now time.Time) time.Duration {
	elapsed := time.Duration(now.UnixNano() % int64(w))
	return w - elapsed
}
