package counters

import (
	"context"

	"github.com/technosupport/ts-tracker/internal/classify"
)

// Counter names. The page-view group is mutually exclusive per request; the
// status group always increments exactly one member.
const (
	PageViewCrawler        = "page_view_crawler"
	PageViewCrawlerAgent   = "page_view_crawler_ua"
	PageViewLoggedIn       = "page_view_logged_in"
	PageViewLoggedInMobile = "page_view_logged_in_mobile"
	PageViewAnon           = "page_view_anon"
	PageViewAnonMobile     = "page_view_anon_mobile"

	HTTPTotal      = "http_total"
	HTTP5xx        = "http_5xx"
	HTTPBackground = "http_background"
	HTTP4xx        = "http_4xx"
	HTTP3xx        = "http_3xx"
	HTTP2xx        = "http_2xx"
)

// Record applies the increment policy for one finished request. Run by the
// deferred logger, never on the response path.
func Record(ctx context.Context, sink Sink, m classify.Metrics, loginRequired bool) {
	if m.TrackView {
		// First match wins: crawler, then authenticated, then anonymous
		// (suppressed entirely when the site requires login).
		switch {
		case m.IsCrawler:
			sink.Incr(ctx, PageViewCrawler)
			if m.UserAgent != "" {
				sink.IncrDim(ctx, PageViewCrawlerAgent, m.UserAgent)
			}
		case m.HasAuthCookie:
			sink.Incr(ctx, PageViewLoggedIn)
			if m.IsMobile {
				sink.Incr(ctx, PageViewLoggedInMobile)
			}
		case !loginRequired:
			sink.Incr(ctx, PageViewAnon)
			if m.IsMobile {
				sink.Incr(ctx, PageViewAnonMobile)
			}
		}
	}

	sink.Incr(ctx, HTTPTotal)

	// Background overrides the 4xx/3xx/2xx bucketing but never 5xx.
	switch {
	case m.Status >= 500:
		sink.Incr(ctx, HTTP5xx)
	case m.IsBackground:
		sink.Incr(ctx, HTTPBackground)
	case m.Status >= 400:
		sink.Incr(ctx, HTTP4xx)
	case m.Status >= 300:
		sink.Incr(ctx, HTTP3xx)
	case m.Status >= 200:
		sink.Incr(ctx, HTTP2xx)
	}
}
