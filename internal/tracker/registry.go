package tracker

import (
	"net/http"
	"sync"

	"github.com/technosupport/ts-tracker/internal/classify"
)

// DetailedLogFunc receives the raw request and the computed metrics for
// every tracked request. Callbacks run on the request goroutine during
// finalization, each isolated from the others' failures.
type DetailedLogFunc func(r *http.Request, m classify.Metrics)

// Registry holds the process-wide detailed-logging callbacks. It is created
// at process start, mutated via Register/unregister, and read as a snapshot
// by every in-flight request.
type Registry struct {
	mu      sync.Mutex
	nextID  int
	entries []registryEntry
}

type registryEntry struct {
	id int
	fn DetailedLogFunc
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a callback and returns the function that removes it.
func (g *Registry) Register(fn DetailedLogFunc) (unregister func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := g.nextID
	g.entries = append(g.entries, registryEntry{id: id, fn: fn})
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, e := range g.entries {
			if e.id == id {
				g.entries = append(g.entries[:i], g.entries[i+1:]...)
				return
			}
		}
	}
}

func (g *Registry) snapshot() []DetailedLogFunc {
	g.mu.Lock()
	defer g.mu.Unlock()
	fns := make([]DetailedLogFunc, len(g.entries))
	for i, e := range g.entries {
		fns[i] = e.fn
	}
	return fns
}
