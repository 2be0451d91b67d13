package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller's address. The API runs behind a proxy that
// overwrites X-Forwarded-For, so its leftmost entry is trusted; entries
// that do not parse as addresses are skipped.
func ClientIP(r *http.Request) string {
	for _, candidate := range forwardedCandidates(r) {
		if addr, ok := parseAddr(candidate); ok {
			return addr
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func forwardedCandidates(r *http.Request) []string {
	var out []string
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		out = append(out, first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		out = append(out, xri)
	}
	return out
}

func parseAddr(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	return "", false
}
