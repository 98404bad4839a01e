package ratelimit

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
)

// Policy holds the per-process limiter configuration. Gates are built from
// it per request.
type Policy struct {
	limiter    *Limiter
	perIP      Limit
	perUser    Limit
	exceptions *ExceptionList
}

func NewPolicy(l *Limiter, perIP, perUser Limit, exceptions *ExceptionList) *Policy {
	return &Policy{limiter: l, perIP: perIP, perUser: perUser, exceptions: exceptions}
}

// Gate builds the per-request gate from the resolved user (0 = anonymous)
// and the request.
func (p *Policy) Gate(userID int64, r *http.Request) *Gate {
	ipStr := ClientIP(r)
	ip, _ := netip.ParseAddr(ipStr)
	return &Gate{policy: p, ipStr: ipStr, ip: ip, userID: userID}
}

// Gate wraps one downstream call in the allow/reject decision.
type Gate struct {
	policy   *Policy
	ipStr    string
	ip       netip.Addr
	userID   int64
	rejected bool
}

// Within runs next strictly inside the allow scope. On reject it writes the
// 429 response itself and next is never called. Redis failures fail open.
func (g *Gate) Within(w http.ResponseWriter, r *http.Request, next func()) {
	p := g.policy
	if p == nil || p.limiter == nil {
		next()
		return
	}

	if g.ip.IsValid() && (p.exceptions.Contains(g.ip) || skipIP(g.ip)) {
		next()
		return
	}

	d, err := p.limiter.Check(r.Context(), fmt.Sprintf("rl:ip:%s", g.ipStr), p.perIP)
	if err != nil {
		log.Printf("ratelimit: check failed, failing open: %v", err)
		next()
		return
	}
	if !d.Allowed {
		g.reject(w, d)
		return
	}

	if g.userID != 0 {
		d, err = p.limiter.Check(r.Context(), fmt.Sprintf("rl:user:%d", g.userID), p.perUser)
		if err == nil && !d.Allowed {
			g.reject(w, d)
			return
		}
	}

	next()
}

// Rejected reports whether the gate wrote the rejection response. The
// tracker only looks at this, never at the reason.
func (g *Gate) Rejected() bool {
	return g.rejected
}

func (g *Gate) reject(w http.ResponseWriter, d *Decision) {
	g.rejected = true
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
	http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ClientIP extracts the caller address: first X-Forwarded-For entry when
// present, else the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
