package perf

import (
	"context"
	"testing"
	"time"
)

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{123456789 * time.Nanosecond, "0.123457"},
		{0, "0.000000"},
		{time.Second, "1.000000"},
		{1500 * time.Millisecond, "1.500000"},
	}
	for _, c := range cases {
		if got := FormatSeconds(c.d); got != c.want {
			t.Errorf("FormatSeconds(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestCaptureRecords(t *testing.T) {
	ctx, c := Start(context.Background())

	if FromContext(ctx) != c {
		t.Fatal("capture not found in context")
	}

	c.RecordRedis(2 * time.Millisecond)
	c.RecordRedis(3 * time.Millisecond)
	c.RecordSQL(5 * time.Millisecond)

	if c.RedisCalls() != 2 {
		t.Errorf("RedisCalls = %d, want 2", c.RedisCalls())
	}
	if c.RedisTime() != 5*time.Millisecond {
		t.Errorf("RedisTime = %v, want 5ms", c.RedisTime())
	}
	if c.SQLCalls() != 1 {
		t.Errorf("SQLCalls = %d, want 1", c.SQLCalls())
	}

	c.Stop()
	if c.Total() <= 0 {
		t.Error("Total not fixed by Stop")
	}
}

func TestFromContextOutsideScope(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("expected nil capture outside a scope")
	}
}
