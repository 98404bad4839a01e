// Package tracker is the composition root of request tracking: it
// authenticates the caller, wraps the downstream handler in the rate-limit
// gate and a timing capture, annotates response headers, classifies the
// finished exchange, and hands the metrics record to the deferred logger.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/technosupport/ts-tracker/internal/auth"
	"github.com/technosupport/ts-tracker/internal/authcookie"
	"github.com/technosupport/ts-tracker/internal/classify"
	"github.com/technosupport/ts-tracker/internal/counters"
	"github.com/technosupport/ts-tracker/internal/perf"
	"github.com/technosupport/ts-tracker/internal/ratelimit"
)

// Response headers added by the tracker.
const (
	HeaderRuntime    = "X-Runtime"
	HeaderRedisCalls = "X-Redis-Calls"
	HeaderRedisTime  = "X-Redis-Time"
	HeaderSQLCalls   = "X-Sql-Calls"
	HeaderSQLTime    = "X-Sql-Time"
	HeaderQueueTime  = "X-Queue-Time"
	HeaderTrackView  = "X-Discourse-TrackView"
	HeaderLoggedOut  = "Discourse-Logged-Out"
)

// Settings is the per-request snapshot of the dynamic site flags.
type Settings struct {
	// PerfHeaders enables the verbose backend-call headers.
	PerfHeaders bool

	// LoginRequired suppresses anonymous page-view counting.
	LoginRequired bool
}

// Scheduler is the deferred hand-off; *deferred.Logger satisfies it.
type Scheduler interface {
	Schedule(job func())
}

type Options struct {
	Resolver *auth.Resolver
	Limits   *ratelimit.Policy
	Sink     counters.Sink
	Logger   Scheduler

	// Settings returns the current flag snapshot; nil means all-off.
	Settings func() Settings

	// Registry of detailed-logging callbacks; nil gets a fresh one.
	Registry *Registry
}

type Tracker struct {
	resolver *auth.Resolver
	limits   *ratelimit.Policy
	sink     counters.Sink
	logger   Scheduler
	settings func() Settings
	registry *Registry
}

func New(opts Options) *Tracker {
	t := &Tracker{
		resolver: opts.Resolver,
		limits:   opts.Limits,
		sink:     opts.Sink,
		logger:   opts.Logger,
		settings: opts.Settings,
		registry: opts.Registry,
	}
	if t.settings == nil {
		t.settings = func() Settings { return Settings{} }
	}
	if t.registry == nil {
		t.registry = NewRegistry()
	}
	return t
}

// Registry exposes the callback registry for collaborators to register
// detailed request loggers.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// requestState is mutable per-request bookkeeping shared between the
// middleware body and the finalizer.
type requestState struct {
	skip            bool
	credentialStale bool
	downstream      bool
}

type stateKey struct{}

// Skip marks the request so the finalizer records nothing for it.
func Skip(ctx context.Context) {
	if s, ok := ctx.Value(stateKey{}).(*requestState); ok {
		s.skip = true
	}
}

// Middleware runs the per-request state machine. The finalizer is installed
// first so classification and deferred logging run on every exit path,
// including the terminal auth short-circuits and downstream panics.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := &requestState{}
		ctx := context.WithValue(r.Context(), stateKey{}, state)

		if _, ok := QueueTime(ctx); !ok {
			if qs, ok := queueSeconds(r, time.Now()); ok {
				ctx = WithQueueTime(ctx, qs)
			}
		}
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		var result *auth.Result
		var capture *perf.Capture

		defer func() {
			t.finalize(r, rw, state, result, capture)
		}()

		res, err := t.resolver.Resolve(ctx, r, ratelimit.ClientIP(r))
		switch {
		case errors.Is(err, auth.ErrInvalidCredentialFormat):
			writeInvalidAccess(rw, err)
			return
		case errors.Is(err, auth.ErrTooManyAttempts):
			writeLockout(rw)
			return
		case err != nil:
			// Resolver faults degrade to anonymous rather than failing the
			// request.
			log.Printf("tracker: auth resolve failed: %v", err)
			res = &auth.Result{}
		}
		result = res
		state.credentialStale = res.CredentialStale

		var userID int64
		if res.User != nil {
			userID = res.User.ID
		}
		gate := t.limits.Gate(userID, r)

		ctx, capture = perf.Start(ctx)
		r = r.WithContext(ctx)

		activeCapture := capture
		rw.beforeWrite = func(status int, h http.Header) {
			if !state.downstream {
				return // rejection and error responses are not annotated
			}
			t.annotate(r, status, h, state, res, activeCapture)
		}

		gate.Within(rw, r, func() {
			state.downstream = true
			next.ServeHTTP(rw, r)
		})
		capture.Stop()
	})
}

// annotate stamps the timing and tracking headers. It runs at first write,
// before the status line goes out, so the runtime value is the elapsed time
// up to the response being produced.
func (t *Tracker) annotate(r *http.Request, status int, h http.Header, state *requestState, res *auth.Result, capture *perf.Capture) {
	set := t.settings()

	h.Set(HeaderRuntime, perf.FormatSeconds(capture.Elapsed()))
	if set.PerfHeaders {
		h.Set(HeaderRedisCalls, strconv.Itoa(capture.RedisCalls()))
		h.Set(HeaderRedisTime, perf.FormatSeconds(capture.RedisTime()))
		h.Set(HeaderSQLCalls, strconv.Itoa(capture.SQLCalls()))
		h.Set(HeaderSQLTime, perf.FormatSeconds(capture.SQLTime()))
		if qs, ok := QueueTime(r.Context()); ok {
			h.Set(HeaderQueueTime, perf.FormatSecondsFloat(qs))
		}
	}
	if state.credentialStale {
		h.Set(HeaderLoggedOut, "1")
	}

	hasCookie := res != nil && res.HasAuthCookie
	if m := classify.Classify(r, status, h, hasCookie); m.TrackView {
		h.Set(HeaderTrackView, "1")
	}
}

// finalize computes the metrics record and schedules the counter
// increments. result and capture may be nil when an auth short-circuit or a
// fault ended the request early; classification proceeds best-effort with
// whatever exists.
func (t *Tracker) finalize(r *http.Request, rw *responseWriter, state *requestState, result *auth.Result, capture *perf.Capture) {
	if state.skip {
		return
	}

	m, ok := t.computeMetrics(r, rw, result, capture)
	if !ok {
		return // classification fault: skip logging entirely
	}

	for _, fn := range t.registry.snapshot() {
		invokeCallback(fn, r, m)
	}

	loginRequired := t.settings().LoginRequired
	sink := t.sink
	t.logger.Schedule(func() {
		counters.Record(context.Background(), sink, m, loginRequired)
	})
}

func (t *Tracker) computeMetrics(r *http.Request, rw *responseWriter, result *auth.Result, capture *perf.Capture) (m classify.Metrics, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("tracker: classification failed, skipping metrics: %v", rec)
			ok = false
		}
	}()

	hasCookie := result != nil && result.HasAuthCookie
	m = classify.Classify(r, rw.status, rw.Header(), hasCookie)

	if capture != nil {
		m.Duration = capture.Total()
		m.RedisCalls = capture.RedisCalls()
		m.RedisTime = capture.RedisTime()
		m.SQLCalls = capture.SQLCalls()
		m.SQLTime = capture.SQLTime()
	}
	if qs, qok := QueueTime(r.Context()); qok {
		m.QueueSeconds = qs
		m.HasQueueTime = true
	}
	return m, true
}

func invokeCallback(fn DetailedLogFunc, r *http.Request, m classify.Metrics) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("tracker: detailed log callback panic contained: %v", rec)
		}
	}()
	fn(r, m)
}

type accessError struct {
	Errors    []string `json:"errors"`
	ErrorType string   `json:"error_type"`
}

func writeInvalidAccess(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(accessError{
		Errors:    []string{err.Error()},
		ErrorType: "invalid_access",
	})
}

func writeLockout(w http.ResponseWriter) {
	http.SetCookie(w, authcookie.Clear())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = io.WriteString(w, "Too many bad credential attempts. Wait before retrying.\n")
}

// responseWriter captures the status code and gives the tracker one shot at
// the headers before the status line is written.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wrote       bool
	beforeWrite func(status int, h http.Header)
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.wrote = true
		rw.status = code
		if rw.beforeWrite != nil {
			rw.beforeWrite(code, rw.Header())
		}
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wrote {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps streaming handlers working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
