// Package ratelimit gates requests behind redis-backed windows. The tracker
// consumes it as a black box: it builds a Gate per request and runs the
// downstream handler inside Within; on reject the gate writes the 429
// response itself.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

// Limit is one window configuration.
type Limit struct {
	Rate   int
	Window time.Duration
}

// Decision is the outcome of a single window check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int // seconds
}

// windowScript atomically increments the window counter and arms its expiry
// on first use.
var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Check runs one window check for key. Any redis failure maps to
// ErrRedisUnavailable; callers fail open.
func (l *Limiter) Check(ctx context.Context, key string, limit Limit) (*Decision, error) {
	count, err := windowScript.Run(ctx, l.client, []string{key}, limit.Window.Milliseconds()).Int()
	if err != nil {
		return nil, ErrRedisUnavailable
	}

	remaining := limit.Rate - count
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Allowed:    count <= limit.Rate,
		Limit:      limit.Rate,
		Remaining:  remaining,
		Reset:      time.Now().Add(limit.Window), // upper bound, avoids a TTL round trip
		RetryAfter: int(limit.Window.Seconds()),
	}, nil
}
