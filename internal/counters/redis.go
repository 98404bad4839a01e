package counters

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReadOnlyKey marks the persistence layer read-only. While it exists,
// increments are skipped silently; counting resumes in the next writable
// window with no backfill.
const ReadOnlyKey = "readonly"

// RedisSink stores daily counters under req:<yyyymmdd>:<name>. The
// read-only guard is consulted before every increment, with a short
// in-process cache so the hot path does not pay an extra round trip per
// counter.
type RedisSink struct {
	client *redis.Client

	mu         sync.Mutex
	checkEvery time.Duration
	lastCheck  time.Time
	readOnly   bool
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, checkEvery: time.Second}
}

func (s *RedisSink) Incr(ctx context.Context, name string) {
	s.incr(ctx, key(name, ""))
}

func (s *RedisSink) IncrDim(ctx context.Context, name, dimension string) {
	s.incr(ctx, key(name, dimension))
}

func (s *RedisSink) incr(ctx context.Context, k string) {
	if !s.writable(ctx) {
		return
	}
	if err := s.client.Incr(ctx, k).Err(); err != nil {
		// Drop the sample; deferred logging never retries.
		log.Printf("counters: incr %s failed: %v", k, err)
	}
}

func (s *RedisSink) writable(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) < s.checkEvery {
		return !s.readOnly
	}
	n, err := s.client.Exists(ctx, ReadOnlyKey).Result()
	s.readOnly = err == nil && n > 0
	s.lastCheck = time.Now()
	return !s.readOnly
}

func key(name, dimension string) string {
	k := "req:" + time.Now().UTC().Format("20060102") + ":" + name
	if dimension != "" {
		k += ":" + dimension
	}
	return k
}
