package webhook

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// blockedPrefixes are address ranges a webhook may never reach: loopback,
// private, link-local, CGNAT and their IPv6 counterparts.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// TargetPolicy decides which URLs a doctor may register as a webhook.
type TargetPolicy struct {
	// AllowPrivate admits http, private addresses and any port. Local
	// development only.
	AllowPrivate bool
	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
}

// Check validates raw. Hosts that do not resolve yet are accepted; the
// dialer re-checks every address at delivery time.
func (p TargetPolicy) Check(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}

	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && p.AllowPrivate:
	default:
		return ErrInvalidScheme
	}
	host := u.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if p.AllowPrivate {
		return nil
	}

	if isLocalName(host) {
		return ErrLocalhostBlocked
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return ErrPrivateIP
		}
	} else if addrs, err := p.resolver().LookupNetIP(ctx, "ip", host); err == nil {
		for _, a := range addrs {
			if isBlockedAddr(a) {
				return ErrPrivateIP
			}
		}
	}

	if port := u.Port(); port != "" && port != "443" {
		return ErrInvalidPort
	}
	return nil
}

func (p TargetPolicy) resolver() *net.Resolver {
	if p.Resolver != nil {
		return p.Resolver
	}
	return net.DefaultResolver
}

func isLocalName(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.Unmap().IsLoopback()
}

// dialControl runs after DNS resolution, so a host that rebinds to a
// private address between registration and delivery is still refused.
func dialControl(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return err
	}
	if isBlockedAddr(ap.Addr()) {
		return ErrPrivateIP
	}
	return nil
}

// TargetHost returns only the host of a webhook URL. Paths and queries
// may embed the receiver's own tokens and never reach the logs.
func TargetHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
