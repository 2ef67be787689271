package checks

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/rmarins/sitesentry/internal/core"
)

// guardedDialer returns a dialer that re-validates the resolved address
// against the private/loopback block list at connect time. URL-time
// validation alone is not enough: a hostile zone can swap its records
// between validation and dial (DNS rebinding).
func guardedDialer(timeout time.Duration, allowPrivate bool) *net.Dialer {
	d := &net.Dialer{Timeout: timeout}
	if allowPrivate {
		return d
	}
	d.Control = func(network, address string, _ syscall.RawConn) error {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return fmt.Errorf("split dial address %q: %w", address, err)
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			return fmt.Errorf("parse dial address %q: %w", host, err)
		}
		if core.DisallowedIP(ip) {
			return &Failure{Kind: FailDisallowedAddress, Err: fmt.Errorf("refusing to dial %s", ip)}
		}
		return nil
	}
	return d
}
