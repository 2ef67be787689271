package core

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

const maxURLLen = 300

// blockedNets covers loopback, link-local, RFC1918 and other ranges a
// monitored endpoint must never resolve to.
var blockedNets = func() []netip.Prefix {
	cidrs := []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	nets := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		nets = append(nets, netip.MustParsePrefix(c))
	}
	return nets
}()

// DisallowedIP reports whether ip falls in a blocked range.
func DisallowedIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, p := range blockedNets {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// NormalizeURL canonicalizes a user-supplied URL to scheme+host: bare
// hostnames get https, path/query/fragment/userinfo are stripped, the
// host is lowercased and punycode-encoded. Control characters and
// over-long input are rejected.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	for _, r := range raw {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("url contains control characters")
		}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url has no host")
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("punycode host %q: %w", host, err)
	}
	normalized := u.Scheme + "://" + ascii
	if port := u.Port(); port != "" {
		normalized += ":" + port
	}
	if len(normalized) > maxURLLen {
		return "", fmt.Errorf("url longer than %d characters", maxURLLen)
	}
	return normalized, nil
}

// ValidateURL normalizes raw and rejects it when the host resolves to a
// loopback, link-local or private address. A nil resolver uses the
// system default.
func ValidateURL(ctx context.Context, resolver *net.Resolver, raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(normalized)
	host := u.Hostname()

	if ip, err := netip.ParseAddr(host); err == nil {
		if DisallowedIP(ip) {
			return "", fmt.Errorf("address %s is not allowed", ip)
		}
		return normalized, nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, ip := range addrs {
		if DisallowedIP(ip) {
			return "", fmt.Errorf("%s resolves to disallowed address %s", host, ip)
		}
	}
	return normalized, nil
}
