// Package counters owns the aggregate counter surface: the Sink interface
// the deferred logger writes into, its prometheus and redis implementations,
// and the increment policy applied to each finished request.
package counters

import "context"

// Sink increments named, monotonically-growing counters. Implementations
// must be safe under concurrent increments.
type Sink interface {
	Incr(ctx context.Context, name string)

	// IncrDim increments a counter broken out by a dimension value, e.g.
	// crawler page views per user agent.
	IncrDim(ctx context.Context, name, dimension string)
}

// MultiSink fans increments out to several sinks.
type MultiSink []Sink

func (m MultiSink) Incr(ctx context.Context, name string) {
	for _, s := range m {
		s.Incr(ctx, name)
	}
}

func (m MultiSink) IncrDim(ctx context.Context, name, dimension string) {
	for _, s := range m {
		s.IncrDim(ctx, name, dimension)
	}
}
