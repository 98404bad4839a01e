package counters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedisSink(t *testing.T) (*RedisSink, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := NewRedisSink(rdb)
	s.checkEvery = 0 // consult the guard on every increment in tests
	return s, mr, rdb
}

func TestRedisSinkIncrements(t *testing.T) {
	s, _, rdb := testRedisSink(t)
	ctx := context.Background()

	s.Incr(ctx, HTTPTotal)
	s.Incr(ctx, HTTPTotal)
	s.IncrDim(ctx, PageViewCrawlerAgent, "Googlebot/2.1")

	day := time.Now().UTC().Format("20060102")
	if n, _ := rdb.Get(ctx, "req:"+day+":http_total").Int(); n != 2 {
		t.Errorf("http_total = %d, want 2", n)
	}
	if n, _ := rdb.Get(ctx, "req:"+day+":page_view_crawler_ua:Googlebot/2.1").Int(); n != 1 {
		t.Errorf("per-agent counter = %d, want 1", n)
	}
}

func TestRedisSinkReadOnlySkipsSilently(t *testing.T) {
	s, _, rdb := testRedisSink(t)
	ctx := context.Background()

	rdb.Set(ctx, ReadOnlyKey, "1", 0)
	s.Incr(ctx, HTTPTotal)

	day := time.Now().UTC().Format("20060102")
	if err := rdb.Get(ctx, "req:"+day+":http_total").Err(); err != redis.Nil {
		t.Error("no counters may change in read-only mode")
	}

	// Next writable window resumes counting.
	rdb.Del(ctx, ReadOnlyKey)
	s.Incr(ctx, HTTPTotal)
	if n, _ := rdb.Get(ctx, "req:"+day+":http_total").Int(); n != 1 {
		t.Errorf("counting did not resume: got %d", n)
	}
}
