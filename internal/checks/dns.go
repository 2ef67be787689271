package checks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/rmarins/sitesentry/internal/core"
)

// DNSChecker resolves A and MX records, preferring the zone's own name
// servers so cached or poisoned recursive answers don't mask a broken
// delegation. When NS discovery fails it falls back to public resolvers
// and flags the result as non-authoritative.
type DNSChecker struct {
	client *dns.Client
	// Servers, when set, skips NS discovery and queries these directly
	// ("host:port"). Used by tests and by operators pinning a resolver.
	Servers []string

	fallback []string
}

func NewDNSChecker(timeout time.Duration) *DNSChecker {
	return &DNSChecker{
		client:   &dns.Client{Timeout: timeout},
		fallback: []string{"8.8.8.8:53", "8.8.4.4:53"},
	}
}

func (c *DNSChecker) Kind() Kind { return KindDNS }

func (c *DNSChecker) Check(ctx context.Context, targetURL string) Outcome {
	out := start(KindDNS)

	host, err := hostOf(targetURL)
	if err != nil {
		out.Err = failure(FailCheckFailed, err)
		return out.done()
	}

	servers := c.Servers
	authoritative := true
	if len(servers) == 0 {
		servers, err = c.authoritativeServers(ctx, host)
		if err != nil {
			servers = c.fallback
			authoritative = false
		}
	}

	result := &DNSResult{Authoritative: authoritative}

	aMsg, err := c.query(ctx, servers, host, dns.TypeA)
	if err != nil {
		out.Err = toDNSFailure(err)
		return out.done()
	}
	for _, ans := range aMsg.Answer {
		if a, ok := ans.(*dns.A); ok {
			result.ARecords = append(result.ARecords, a.A.String())
		}
	}
	sort.Strings(result.ARecords)

	// MX is best-effort: a zone without mail is not a resolution failure.
	if mxMsg, err := c.query(ctx, servers, host, dns.TypeMX); err == nil {
		for _, ans := range mxMsg.Answer {
			if mx, ok := ans.(*dns.MX); ok {
				result.MXRecords = append(result.MXRecords, core.MXRecord{
					Priority: mx.Preference,
					Host:     strings.TrimSuffix(mx.Mx, "."),
				})
			}
		}
		sort.Slice(result.MXRecords, func(i, j int) bool {
			if result.MXRecords[i].Priority != result.MXRecords[j].Priority {
				return result.MXRecords[i].Priority < result.MXRecords[j].Priority
			}
			return result.MXRecords[i].Host < result.MXRecords[j].Host
		})
	}

	out.DNS = result
	return out.done()
}

// authoritativeServers discovers the zone's NS set and resolves each name
// server to an address usable as a query endpoint.
func (c *DNSChecker) authoritativeServers(ctx context.Context, host string) ([]string, error) {
	zone := host
	if d, err := RegistrableDomain(host); err == nil {
		zone = d
	}

	nsMsg, err := c.query(ctx, c.fallback, zone, dns.TypeNS)
	if err != nil {
		return nil, fmt.Errorf("ns lookup for %s: %w", zone, err)
	}

	var servers []string
	for _, ans := range nsMsg.Answer {
		ns, ok := ans.(*dns.NS)
		if !ok {
			continue
		}
		aMsg, err := c.query(ctx, c.fallback, strings.TrimSuffix(ns.Ns, "."), dns.TypeA)
		if err != nil {
			continue
		}
		for _, a := range aMsg.Answer {
			if rec, ok := a.(*dns.A); ok {
				servers = append(servers, rec.A.String()+":53")
			}
		}
	}
	if len(servers) == 0 {
		return nil, &Failure{Kind: FailNoAuthoritative, Err: fmt.Errorf("no reachable name servers for %s", zone)}
	}
	return servers, nil
}

// query tries each server in order and returns the first usable answer.
func (c *DNSChecker) query(ctx context.Context, servers []string, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	var lastErr error
	for _, server := range servers {
		r, _, err := c.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		switch r.Rcode {
		case dns.RcodeSuccess:
			return r, nil
		case dns.RcodeNameError:
			return nil, &Failure{Kind: FailNXDomain, Err: fmt.Errorf("%s: NXDOMAIN", name)}
		default:
			lastErr = &Failure{Kind: FailServerFailure, Err: fmt.Errorf("%s: %s from %s", name, dns.RcodeToString[r.Rcode], server)}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no dns servers to query")
	}
	return nil, lastErr
}

func toDNSFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if isTimeout(err) {
		return failure(FailTimeout, err)
	}
	return failure(FailServerFailure, err)
}

func hostOf(targetURL string) (string, error) {
	if !strings.Contains(targetURL, "://") {
		return strings.TrimSuffix(targetURL, "."), nil
	}
	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid target url %q", targetURL)
	}
	return u.Hostname(), nil
}
