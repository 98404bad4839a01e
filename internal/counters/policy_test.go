package counters

import (
	"context"
	"sync"
	"testing"

	"github.com/technosupport/ts-tracker/internal/classify"
)

// memSink records increments for assertions.
type memSink struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemSink() *memSink {
	return &memSink{counts: make(map[string]int)}
}

func (s *memSink) Incr(_ context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
}

func (s *memSink) IncrDim(_ context.Context, name, dimension string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name+":"+dimension]++
}

func (s *memSink) get(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func (s *memSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.counts {
		n += v
	}
	return n
}

func record(m classify.Metrics, loginRequired bool) *memSink {
	s := newMemSink()
	Record(context.Background(), s, m, loginRequired)
	return s
}

func TestStatusClassPriority(t *testing.T) {
	// 5xx wins over background.
	s := record(classify.Metrics{Status: 503, IsBackground: true}, false)
	if s.get(HTTP5xx) != 1 || s.get(HTTPBackground) != 0 {
		t.Errorf("503 background: got %v", s.counts)
	}

	// Background wins over 2xx.
	s = record(classify.Metrics{Status: 200, IsBackground: true}, false)
	if s.get(HTTPBackground) != 1 || s.get(HTTP2xx) != 0 {
		t.Errorf("200 background: got %v", s.counts)
	}

	// Background wins over 4xx and 3xx too.
	s = record(classify.Metrics{Status: 404, IsBackground: true}, false)
	if s.get(HTTPBackground) != 1 || s.get(HTTP4xx) != 0 {
		t.Errorf("404 background: got %v", s.counts)
	}

	for status, want := range map[int]string{500: HTTP5xx, 404: HTTP4xx, 301: HTTP3xx, 200: HTTP2xx} {
		s = record(classify.Metrics{Status: status}, false)
		if s.get(want) != 1 {
			t.Errorf("status %d: expected %s, got %v", status, want, s.counts)
		}
	}
}

func TestAlwaysIncrementsTotal(t *testing.T) {
	s := record(classify.Metrics{Status: 500}, false)
	if s.get(HTTPTotal) != 1 {
		t.Error("http_total must always increment")
	}
}

func TestPageViewCrawlerPriority(t *testing.T) {
	m := classify.Metrics{
		Status:        200,
		TrackView:     true,
		IsCrawler:     true,
		HasAuthCookie: true, // crawler wins even with a cookie
		UserAgent:     "Googlebot/2.1",
	}
	s := record(m, false)
	if s.get(PageViewCrawler) != 1 {
		t.Error("expected crawler page view")
	}
	if s.get(PageViewCrawlerAgent+":Googlebot/2.1") != 1 {
		t.Error("expected per-agent crawler counter")
	}
	if s.get(PageViewLoggedIn) != 0 || s.get(PageViewAnon) != 0 {
		t.Error("page view groups must be mutually exclusive")
	}
}

func TestPageViewLoggedIn(t *testing.T) {
	s := record(classify.Metrics{Status: 200, TrackView: true, HasAuthCookie: true}, false)
	if s.get(PageViewLoggedIn) != 1 || s.get(PageViewAnon) != 0 {
		t.Errorf("logged-in page view: got %v", s.counts)
	}

	s = record(classify.Metrics{Status: 200, TrackView: true, HasAuthCookie: true, IsMobile: true}, false)
	if s.get(PageViewLoggedIn) != 1 || s.get(PageViewLoggedInMobile) != 1 {
		t.Errorf("logged-in mobile page view: got %v", s.counts)
	}
}

func TestPageViewAnonMobile(t *testing.T) {
	s := record(classify.Metrics{Status: 200, TrackView: true, IsMobile: true}, false)
	if s.get(PageViewAnon) != 1 || s.get(PageViewAnonMobile) != 1 {
		t.Errorf("anon mobile page view: got %v", s.counts)
	}
}

func TestLoginRequiredSuppressesAnon(t *testing.T) {
	s := record(classify.Metrics{Status: 200, TrackView: true}, true)
	if s.get(PageViewAnon) != 0 || s.get(PageViewAnonMobile) != 0 {
		t.Error("login-required must suppress anonymous page views")
	}
	// Status counters are unaffected.
	if s.get(HTTPTotal) != 1 || s.get(HTTP2xx) != 1 {
		t.Errorf("status counters missing: got %v", s.counts)
	}
}

func TestNoTrackViewNoPageCounters(t *testing.T) {
	s := record(classify.Metrics{Status: 200}, false)
	if s.get(PageViewAnon) != 0 && s.get(PageViewLoggedIn) != 0 && s.get(PageViewCrawler) != 0 {
		t.Error("no page view counters without trackView")
	}
	if s.total() != 2 { // http_total + http_2xx
		t.Errorf("expected exactly 2 increments, got %v", s.counts)
	}
}
