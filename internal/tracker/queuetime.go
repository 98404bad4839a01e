package tracker

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RequestStartHeader is stamped by the fronting proxy. Two encodings are
// accepted: "t=<epoch-seconds-float>" and a raw milliseconds-since-epoch
// integer.
const RequestStartHeader = "X-Request-Start"

type queueTimeKey struct{}

// WithQueueTime attaches already-computed queue seconds to the context, for
// hosts that measure it upstream of this middleware.
func WithQueueTime(ctx context.Context, seconds float64) context.Context {
	return context.WithValue(ctx, queueTimeKey{}, seconds)
}

// QueueTime returns the queue seconds for the request, if known.
func QueueTime(ctx context.Context) (float64, bool) {
	v, ok := ctx.Value(queueTimeKey{}).(float64)
	return v, ok
}

func parseRequestStart(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if rest, ok := strings.CutPrefix(v, "t="); ok {
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil || f <= 0 {
			return time.Time{}, false
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), true
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// queueSeconds computes elapsed queue time from the request-start header.
// Clock skew can make the proxy timestamp land in the future; clamp to zero
// rather than reporting negative waits.
func queueSeconds(r *http.Request, now time.Time) (float64, bool) {
	start, ok := parseRequestStart(r.Header.Get(RequestStartHeader))
	if !ok {
		return 0, false
	}
	d := now.Sub(start).Seconds()
	if d < 0 {
		d = 0
	}
	return d, true
}
