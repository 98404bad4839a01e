package counters

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes counters through a prometheus registry. Vectors are
// created lazily per counter name with a single "dimension" label (empty
// for plain increments).
type PromSink struct {
	registry prometheus.Registerer

	mu   sync.Mutex
	vecs map[string]*prometheus.CounterVec
}

func NewPromSink(reg prometheus.Registerer) *PromSink {
	return &PromSink{
		registry: reg,
		vecs:     make(map[string]*prometheus.CounterVec),
	}
}

func (s *PromSink) Incr(ctx context.Context, name string) {
	s.vec(name).WithLabelValues("").Inc()
}

func (s *PromSink) IncrDim(ctx context.Context, name, dimension string) {
	s.vec(name).WithLabelValues(dimension).Inc()
}

func (s *PromSink) vec(name string) *prometheus.CounterVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vecs[name]; ok {
		return v
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      name,
		Help:      "Aggregate request counter " + name,
	}, []string{"dimension"})
	s.registry.MustRegister(v)
	s.vecs[name] = v
	return v
}
