package perf

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHook attributes every redis command to the Capture in its context.
// Install it once on the shared client with client.AddHook. Commands issued
// outside a capture scope pass through untouched.
type RedisHook struct{}

var _ redis.Hook = RedisHook{}

func (RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c := FromContext(ctx)
		if c == nil {
			return next(ctx, cmd)
		}
		start := time.Now()
		err := next(ctx, cmd)
		c.RecordRedis(time.Since(start))
		return err
	}
}

func (RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		c := FromContext(ctx)
		if c == nil {
			return next(ctx, cmds)
		}
		// A pipeline is one round trip, so it counts as one call.
		start := time.Now()
		err := next(ctx, cmds)
		c.RecordRedis(time.Since(start))
		return err
	}
}
