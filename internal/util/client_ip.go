package util

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the set of reverse proxies whose X-Forwarded-For header is
// believed. A nil set trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDR ranges or single addresses. It returns nil
// when no entries are given.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var prefixes []netip.Prefix
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &TrustedProxies{prefixes: prefixes}, nil
}

// Contains reports whether addr belongs to a trusted proxy.
func (t *TrustedProxies) Contains(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address rate limits are keyed on. The forwarded chain
// is walked right to left only while hops are trusted proxies.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(peer) {
		return peer.String()
	}
	hops := forwardedHops(r.Header.Get("X-Forwarded-For"))
	if len(hops) == 0 {
		return peer.String()
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !trusted.Contains(hops[i]) {
			return hops[i].String()
		}
	}
	return hops[0].String()
}

func forwardedHops(header string) []netip.Addr {
	var hops []netip.Addr
	for _, part := range strings.Split(header, ",") {
		if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
			hops = append(hops, addr.Unmap())
		}
	}
	return hops
}

func peerAddr(remote string) (netip.Addr, bool) {
	remote = strings.TrimSpace(remote)
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}
