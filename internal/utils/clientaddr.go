package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxyHeaders are consulted in order when the server sits behind a trusted proxy.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ParseAddr reads an address written as "ip", "ip:port" or "[v6]:port".
// IPv4-mapped IPv6 addresses come back as plain IPv4.
func ParseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

// ClientAddr resolves the address a request came from. With trustProxy the proxy
// headers win, but only when they carry a parseable address; a header holding
// anything else is skipped rather than used as a rate limit key.
func ClientAddr(r *http.Request, trustProxy bool) (netip.Addr, bool) {
	if trustProxy {
		for _, h := range proxyHeaders {
			v := r.Header.Get(h)
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i] // left-most hop of X-Forwarded-For
			}
			if addr, ok := ParseAddr(v); ok {
				return addr, true
			}
		}
	}
	return ParseAddr(r.RemoteAddr)
}

// ClientIP is ClientAddr as a string, falling back to the raw RemoteAddr so that
// callers keying on it never collapse unrelated clients into "".
func ClientIP(r *http.Request, trustProxy bool) string {
	if addr, ok := ClientAddr(r, trustProxy); ok {
		return addr.String()
	}
	return r.RemoteAddr
}

// AddrSet is an allowlist of prefixes; single addresses are stored as /32 or /128.
type AddrSet struct {
	prefixes []netip.Prefix
}

// NewAddrSet parses list and returns the entries it could not read.
func NewAddrSet(list []string) (*AddrSet, []string) {
	s := &AddrSet{}
	var invalid []string
	for _, raw := range list {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if p, err := netip.ParsePrefix(v); err == nil {
			if p.Addr().Is4In6() && p.Bits() >= 96 {
				p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
			}
			s.prefixes = append(s.prefixes, p.Masked())
			continue
		}
		if addr, ok := ParseAddr(v); ok {
			s.prefixes = append(s.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		invalid = append(invalid, v)
	}
	return s, invalid
}

func (s *AddrSet) Len() int { return len(s.prefixes) }

// Contains reports whether addr falls in any prefix of the set.
func (s *AddrSet) Contains(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
