// Package useragent classifies User-Agent strings as crawlers or mobile
// browsers. Matching is case-insensitive substring search against fixed
// signature tables; results are memoized because the set of distinct agents
// hitting a process is small compared to request volume.
package useragent

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var crawlerMarkers = []string{
	"googlebot",
	"bingbot",
	"baiduspider",
	"yandexbot",
	"duckduckbot",
	"slurp",
	"applebot",
	"facebookexternalhit",
	"twitterbot",
	"linkedinbot",
	"semrushbot",
	"ahrefsbot",
	"mj12bot",
	"petalbot",
	"pingdom",
	"headlesschrome",
	"lighthouse",
	"curl/",
	"wget/",
	"python-requests",
	"go-http-client",
	"apache-httpclient",
	"spider",
	"crawler",
}

var mobileMarkers = []string{
	"mobile",
	"android",
	"iphone",
	"ipad",
	"ipod",
	"opera mini",
	"webos",
	"blackberry",
	"windows phone",
}

type result struct {
	crawler bool
	mobile  bool
}

const cacheSize = 2048

var cache *lru.Cache[string, result]

func init() {
	// lru.New only errors on a non-positive size.
	cache, _ = lru.New[string, result](cacheSize)
}

// IsCrawler reports whether the user agent matches a known crawler signature.
func IsCrawler(ua string) bool {
	return ua != "" && lookup(ua).crawler
}

// IsMobile reports whether the user agent looks like a mobile browser.
func IsMobile(ua string) bool {
	return ua != "" && lookup(ua).mobile
}

func lookup(ua string) result {
	if r, ok := cache.Get(ua); ok {
		return r
	}
	lower := strings.ToLower(ua)
	r := result{
		crawler: matchAny(lower, crawlerMarkers),
		mobile:  matchAny(lower, mobileMarkers),
	}
	cache.Add(ua, r)
	return r
}

func matchAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
