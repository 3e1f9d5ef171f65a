// Package ratelimit enforces fixed-window request budgets against a shared
// redis counter store, so the limit holds across every process of a
// horizontally scaled deployment.
//
// Two buckets are conventionally configured: a strict login bucket keyed
// by submitted email or client IP, and a larger global bucket for all
// other traffic. Consumption is a single Lua script, so "at most N
// admitted per window" holds under concurrent callers sharing a key.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps redis failures. A failing bucket denies unless
// FailOpen is set; the login bucket must never set it.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// consumeScript atomically increments the window counter, arming the
// window TTL on first use. Once the budget is spent the counter keeps its
// TTL, so the key stays blocked for the remainder of the window.
const consumeScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return {0, redis.call("PTTL", KEYS[1])}
end
return {1, 0}
`

var consumeLua = redis.NewScript(consumeScript)

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Options configure one bucket.
type Options struct {
	// Prefix namespaces the bucket's keys, e.g. "rl:login".
	Prefix string
	// Points is the admission budget per window.
	Points int
	// Window is the counting window; exhausted keys stay blocked until it
	// elapses.
	Window time.Duration
	// FailOpen admits traffic when redis is unreachable. Defaults to
	// false (deny), which is the only safe setting for the login bucket.
	FailOpen bool
}

// Limiter is one token bucket family over a shared redis store. Safe for
// concurrent use.
type Limiter struct {
	redis redis.UniversalClient
	opts  Options
}

// New returns a Limiter; zero Points or Window fall back to 5 per minute.
func New(client redis.UniversalClient, opts Options) *Limiter {
	if opts.Prefix == "" {
		opts.Prefix = "rl"
	}
	if opts.Points <= 0 {
		opts.Points = 5
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return &Limiter{redis: client, opts: opts}
}

// Consume spends one point for key. When the budget is exhausted the
// decision carries a positive RetryAfter. When the backing store fails the
// bucket denies (RetryAfter = full window) unless FailOpen is configured.
func (l *Limiter) Consume(ctx context.Context, key string) (Decision, error) {
	res, err := consumeLua.Run(ctx, l.redis,
		[]string{l.opts.Prefix + ":" + key},
		l.opts.Window.Milliseconds(),
		l.opts.Points,
	).Int64Slice()
	if err != nil {
		if l.opts.FailOpen {
			return Decision{Allowed: true}, nil
		}
		return Decision{Allowed: false, RetryAfter: l.opts.Window},
			fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{Allowed: false, RetryAfter: l.opts.Window},
			fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}

	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// Reset clears the counter for key. Called after a successful login so an
// honest user's earlier typos do not linger against them.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.opts.Prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
