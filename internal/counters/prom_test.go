package counters

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPromSink(reg)
	ctx := context.Background()

	s.Incr(ctx, HTTPTotal)
	s.Incr(ctx, HTTPTotal)
	s.IncrDim(ctx, PageViewCrawlerAgent, "Googlebot/2.1")

	total := s.vec(HTTPTotal).WithLabelValues("")
	if got := testutil.ToFloat64(total); got != 2 {
		t.Errorf("http_total = %v, want 2", got)
	}

	agent := s.vec(PageViewCrawlerAgent).WithLabelValues("Googlebot/2.1")
	if got := testutil.ToFloat64(agent); got != 1 {
		t.Errorf("per-agent counter = %v, want 1", got)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := newMemSink(), newMemSink()
	m := MultiSink{a, b}

	m.Incr(context.Background(), HTTPTotal)
	m.IncrDim(context.Background(), PageViewCrawlerAgent, "x")

	for _, s := range []*memSink{a, b} {
		if s.get(HTTPTotal) != 1 {
			t.Error("Incr did not fan out")
		}
		if s.get(PageViewCrawlerAgent+":x") != 1 {
			t.Error("IncrDim did not fan out")
		}
	}
}
