package tracker

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseRequestStartEpochSeconds(t *testing.T) {
	start, ok := parseRequestStart("t=1700000000.500000")
	if !ok {
		t.Fatal("expected parse success")
	}
	want := time.Unix(1700000000, 500000000)
	if d := start.Sub(want); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestParseRequestStartMilliseconds(t *testing.T) {
	start, ok := parseRequestStart("1700000000500")
	if !ok {
		t.Fatal("expected parse success")
	}
	if start != time.UnixMilli(1700000000500) {
		t.Errorf("start = %v", start)
	}
}

func TestParseRequestStartGarbage(t *testing.T) {
	for _, v := range []string{"", "t=", "t=abc", "abc", "-5", "t=-5"} {
		if _, ok := parseRequestStart(v); ok {
			t.Errorf("parseRequestStart(%q) should fail", v)
		}
	}
}

func TestQueueSeconds(t *testing.T) {
	now := time.Unix(1700000001, 0)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(RequestStartHeader, "t=1700000000.000000")
	qs, ok := queueSeconds(r, now)
	if !ok {
		t.Fatal("expected queue time")
	}
	if qs < 0.999 || qs > 1.001 {
		t.Errorf("queueSeconds = %v, want ~1.0", qs)
	}

	// Millisecond encoding.
	r.Header.Set(RequestStartHeader, fmt.Sprintf("%d", now.Add(-250*time.Millisecond).UnixMilli()))
	qs, ok = queueSeconds(r, now)
	if !ok || qs < 0.249 || qs > 0.251 {
		t.Errorf("queueSeconds = %v ok=%v, want ~0.25", qs, ok)
	}

	// Future timestamps clamp to zero instead of going negative.
	r.Header.Set(RequestStartHeader, "t=1700000005.000000")
	if qs, ok = queueSeconds(r, now); !ok || qs != 0 {
		t.Errorf("future start: qs=%v ok=%v, want 0 true", qs, ok)
	}

	// Absent header.
	r.Header.Del(RequestStartHeader)
	if _, ok = queueSeconds(r, now); ok {
		t.Error("expected no queue time without header")
	}
}
