// Package deferred runs metrics-recording work off the response path.
// Scheduling is fire-and-forget: it never blocks, and nothing that happens
// inside a job can reach the request that scheduled it.
package deferred

import (
	"log"
	"sync"
	"sync/atomic"
)

type Logger struct {
	jobs chan func()
	done chan struct{}

	mu     sync.Mutex
	closed bool

	dropped atomic.Int64
}

// New starts the worker. buffer bounds the queue; when it is full new jobs
// are dropped rather than blocking the caller.
func New(buffer int) *Logger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Logger{
		jobs: make(chan func(), buffer),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Schedule enqueues a job. It never blocks and never panics back to the
// caller; after Close it is a no-op.
func (l *Logger) Schedule(job func()) {
	if job == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.jobs <- job:
	default:
		l.dropped.Add(1)
	}
}

// Close stops accepting work, drains the queue, and waits for the worker.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.jobs)
	l.mu.Unlock()
	<-l.done
}

// Dropped reports how many jobs were discarded because the queue was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Logger) run() {
	defer close(l.done)
	for job := range l.jobs {
		l.safeRun(job)
	}
}

func (l *Logger) safeRun(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("deferred: job panic contained: %v", r)
		}
	}()
	job()
}
