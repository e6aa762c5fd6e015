package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/promotrack/promotrack/internal/model"
)

// ClientIP returns the best-known client address. When trustHeaders is set,
// CF-Connecting-IP, the first valid X-Forwarded-For entry and X-Real-IP are
// consulted in that order before RemoteAddr.
func ClientIP(r *http.Request, trustHeaders bool) string {
	if trustHeaders {
		for _, h := range []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"} {
			if ip := firstIP(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	return host
}

// firstIP returns the first valid address in a comma-separated list.
func firstIP(s string) string {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if addr, err := netip.ParseAddr(part); err == nil {
			return addr.Unmap().String()
		}
	}
	return ""
}

// Fingerprint hashes the client signals into a 32 character hex string.
func Fingerprint(ip string, h http.Header) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		ip,
		h.Get("User-Agent"),
		h.Get("Accept-Language"),
		h.Get("Accept-Encoding"),
		h.Get("Accept"),
	}, "|")))
	return hex.EncodeToString(sum[:16])
}

// ClientIdentityFromRequest derives the per-request client identity.
func ClientIdentityFromRequest(r *http.Request, trustHeaders bool) model.ClientIdentity {
	ip := ClientIP(r, trustHeaders)
	return model.ClientIdentity{
		IP:          ip,
		UserAgent:   r.UserAgent(),
		Fingerprint: Fingerprint(ip, r.Header),
	}
}

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// IsPublicIP reports whether ip is a routable public address.
func IsPublicIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() || addr.IsMulticast() {
		return false
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}
