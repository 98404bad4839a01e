package ratelimit

import (
	"fmt"
	"net/netip"
	"sync"
)

// ExceptionList is the configured set of IPs and CIDRs exempt from rate
// limiting, parsed once at config load.
type ExceptionList struct {
	prefixes []netip.Prefix
}

// ParseExceptions accepts bare IPs and CIDR entries.
func ParseExceptions(entries []string) (*ExceptionList, error) {
	list := &ExceptionList{}
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			list.prefixes = append(list.prefixes, p)
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("rate limit exception %q: %w", e, err)
		}
		list.prefixes = append(list.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return list, nil
}

func (l *ExceptionList) Contains(ip netip.Addr) bool {
	if l == nil {
		return false
	}
	for _, p := range l.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// The IP-skip predicate is process-wide shared state: registered once at
// boot for trusted internal callers, read by every in-flight request.
var (
	skipMu sync.Mutex
	skipFn func(netip.Addr) bool
)

// RegisterIPSkip installs the predicate. At most one may be active;
// installing a second while one is live is a fatal configuration error.
func RegisterIPSkip(fn func(netip.Addr) bool) {
	skipMu.Lock()
	defer skipMu.Unlock()
	if skipFn != nil {
		panic("ratelimit: IP skip predicate already registered")
	}
	skipFn = fn
}

// UnregisterIPSkip clears the predicate, for tests and reconfiguration.
func UnregisterIPSkip() {
	skipMu.Lock()
	defer skipMu.Unlock()
	skipFn = nil
}

func skipIP(ip netip.Addr) bool {
	skipMu.Lock()
	fn := skipFn
	skipMu.Unlock()
	return fn != nil && fn(ip)
}
