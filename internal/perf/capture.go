// Package perf measures per-request timing: total duration plus call counts
// and cumulative time for the redis and sql backends. A Capture travels in
// the request context; the redis hook and DB wrapper attribute work to it.
package perf

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"
)

type captureKey struct{}

// Capture accumulates timing for one request. Counters are atomic because
// handlers may fan work out to goroutines.
type Capture struct {
	start time.Time
	total atomic.Int64 // ns, fixed by Stop

	redisCalls atomic.Int64
	redisNanos atomic.Int64
	sqlCalls   atomic.Int64
	sqlNanos   atomic.Int64
}

// Start opens a capture scope and attaches it to the context.
func Start(ctx context.Context) (context.Context, *Capture) {
	c := &Capture{start: time.Now()}
	return context.WithValue(ctx, captureKey{}, c), c
}

// FromContext returns the capture for the request, or nil outside a scope.
func FromContext(ctx context.Context) *Capture {
	c, _ := ctx.Value(captureKey{}).(*Capture)
	return c
}

// Stop fixes the total duration. Call it immediately after the downstream
// handler returns.
func (c *Capture) Stop() {
	c.total.Store(int64(time.Since(c.start)))
}

// Total is the duration fixed by Stop, or zero before it.
func (c *Capture) Total() time.Duration {
	return time.Duration(c.total.Load())
}

// Elapsed is the running duration since Start. Used for the X-Runtime
// header, which must be stamped before the response body is written.
func (c *Capture) Elapsed() time.Duration {
	return time.Since(c.start)
}

func (c *Capture) RecordRedis(d time.Duration) {
	c.redisCalls.Add(1)
	c.redisNanos.Add(int64(d))
}

func (c *Capture) RecordSQL(d time.Duration) {
	c.sqlCalls.Add(1)
	c.sqlNanos.Add(int64(d))
}

func (c *Capture) RedisCalls() int          { return int(c.redisCalls.Load()) }
func (c *Capture) RedisTime() time.Duration { return time.Duration(c.redisNanos.Load()) }
func (c *Capture) SQLCalls() int            { return int(c.sqlCalls.Load()) }
func (c *Capture) SQLTime() time.Duration   { return time.Duration(c.sqlNanos.Load()) }

// FormatSeconds renders a duration as seconds with exactly six decimal
// places, the format shared by all X-* timing headers.
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

// FormatSecondsFloat is FormatSeconds for values already held in seconds.
func FormatSecondsFloat(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 6, 64)
}
