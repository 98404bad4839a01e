// Package classify derives per-request metadata used for aggregate metrics.
// Classification is pure: it reads request and response attributes and
// returns a Metrics record, never touching the network.
package classify

import (
	"net/http"
	"strings"
	"time"

	"github.com/technosupport/ts-tracker/internal/useragent"
)

const (
	// TrackViewHeader lets a client override page-view accounting.
	// "0" or "false" suppresses tracking, any other non-empty value forces
	// it, and absence falls through to the GET/!XHR/HTML heuristic.
	TrackViewHeader = "Discourse-Track-View"

	// CachedHeader is set by an upstream caching layer.
	CachedHeader = "X-Discourse-Cached"

	requestedWithHeader = "X-Requested-With"
)

// Metrics is the transient per-request record consumed exactly once by the
// deferred logger. Timing fields are filled in by the tracker after the
// downstream call completes.
type Metrics struct {
	Status        int
	IsCrawler     bool
	HasAuthCookie bool
	IsBackground  bool
	IsMobile      bool
	TrackView     bool

	Duration   time.Duration
	RedisCalls int
	RedisTime  time.Duration
	SQLCalls   int
	SQLTime    time.Duration

	QueueSeconds float64
	HasQueueTime bool

	// UserAgent is only populated for crawler requests, normalized to valid
	// UTF-8 so corrupt agents cannot break downstream storage.
	UserAgent string

	CacheStatus string
}

// backgroundPrefixes are request paths from polling/real-time channels.
// These are excluded from page-view accounting and get their own status
// bucket.
var backgroundPrefixes = []string{
	"/message-bus/",
	"/topics/timings",
	"/mini-profiler-resources/",
	"/presence/",
	"/manifest.webmanifest",
	"/service-worker",
}

// IsBackground reports whether the path belongs to a background polling
// channel rather than a user-facing request.
func IsBackground(path string) bool {
	for _, p := range backgroundPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsXHR reports whether the request declared itself an XMLHttpRequest.
func IsXHR(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(requestedWithHeader), "XMLHttpRequest")
}

// Classify builds the metrics record from the finished exchange.
func Classify(r *http.Request, status int, respHeader http.Header, hasAuthCookie bool) Metrics {
	ua := r.UserAgent()
	m := Metrics{
		Status:        status,
		IsCrawler:     useragent.IsCrawler(ua),
		HasAuthCookie: hasAuthCookie,
		IsBackground:  IsBackground(r.URL.Path),
		IsMobile:      useragent.IsMobile(ua),
		TrackView:     trackView(r, status, respHeader),
		CacheStatus:   respHeader.Get(CachedHeader),
	}
	if m.IsCrawler {
		m.UserAgent = strings.ToValidUTF8(ua, "�")
	}
	return m
}

// trackView decides whether the request counts as a page view. The override
// header is a three-way branch: a falsy marker short-circuits to no, any
// other non-empty value short-circuits to yes, absence falls through to the
// heuristic.
func trackView(r *http.Request, status int, respHeader http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	switch v := r.Header.Get(TrackViewHeader); v {
	case "0", "false":
		return false
	case "":
		return r.Method == http.MethodGet && !IsXHR(r) &&
			strings.Contains(respHeader.Get("Content-Type"), "text/html")
	default:
		return true
	}
}
