package checks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// WHOISChecker queries registration data for the registrable domain of a
// target. Registries throttle hard, so every lookup goes through a shared
// rate limiter. Parsing failures are reported as failures so the caller's
// cache keeps the last good expiry instead of going blank.
type WHOISChecker struct {
	limiter *rate.Limiter
	// lookup is swappable in tests; defaults to a likexian/whois client.
	lookup func(domain string) (string, error)

	now func() time.Time
}

func NewWHOISChecker(timeout time.Duration, limiter *rate.Limiter) *WHOISChecker {
	client := whois.NewClient()
	client.SetTimeout(timeout)
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(2*time.Second), 3)
	}
	return &WHOISChecker{
		limiter: limiter,
		lookup:  func(domain string) (string, error) { return client.Whois(domain) },
		now:     time.Now,
	}
}

func (c *WHOISChecker) Kind() Kind { return KindWHOIS }

func (c *WHOISChecker) Check(ctx context.Context, targetURL string) Outcome {
	out := start(KindWHOIS)

	domain, err := RegistrableDomain(targetURL)
	if err != nil {
		out.Err = failure(FailNoServer, err)
		return out.done()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		out.Err = failure(FailRateLimited, err)
		return out.done()
	}

	raw, err := c.lookup(domain)
	if err != nil {
		if isTimeout(err) {
			out.Err = failure(FailTimeout, err)
		} else {
			out.Err = failure(FailNoServer, err)
		}
		return out.done()
	}

	result, err := c.parse(raw)
	if err != nil {
		out.Err = failure(FailParse, err)
		return out.done()
	}

	out.WHOIS = result
	return out.done()
}

func (c *WHOISChecker) parse(raw string) (*WHOISResult, error) {
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrDomainLimitExceed) {
			return nil, fmt.Errorf("registry rate limit: %w", err)
		}
		// Some registries defeat the structured parser; fall back to
		// scanning the raw text for an expiry line.
		if t, ok := extractExpiryDate(raw); ok {
			return &WHOISResult{NotAfter: t}, nil
		}
		return nil, fmt.Errorf("parse whois response: %w", err)
	}

	result := &WHOISResult{}
	if parsed.Registrar != nil {
		result.RegistrarName = parsed.Registrar.Name
		result.RegistrarURL = parsed.Registrar.ReferralURL
	}

	if parsed.Domain != nil {
		if parsed.Domain.ExpirationDateInTime != nil {
			result.NotAfter = parsed.Domain.ExpirationDateInTime.UTC()
			return result, nil
		}
		if t, err := parseWhoisDate(parsed.Domain.ExpirationDate); err == nil {
			result.NotAfter = t
			return result, nil
		}
	}
	if t, ok := extractExpiryDate(raw); ok {
		result.NotAfter = t
		return result, nil
	}
	return nil, errors.New("no expiration date in whois response")
}

// RegistrableDomain maps a target URL to the domain its registry answers
// for: WHOIS knows example.co.uk, not www.api.example.co.uk.
func RegistrableDomain(targetURL string) (string, error) {
	host := targetURL
	if strings.Contains(targetURL, "://") {
		u, err := url.Parse(targetURL)
		if err != nil {
			return "", fmt.Errorf("parse target url: %w", err)
		}
		host = u.Hostname()
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("no registrable domain for %q: %w", host, err)
	}
	return domain, nil
}

var whoisExpiryPatterns = []string{
	"registry expiry date:",
	"registrar registration expiration date:",
	"expiry date:",
	"expiration date:",
	"expiration time:",
	"expires:",
	"expiry:",
	"paid-till:",
}

var whoisDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02 15:04:05",
	"2006.01.02",
	"2006/01/02",
}

func parseWhoisDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, format := range whoisDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized whois date %q", s)
}

func extractExpiryDate(raw string) (time.Time, bool) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, pattern := range whoisExpiryPatterns {
			if !strings.HasPrefix(lower, pattern) {
				continue
			}
			if t, err := parseWhoisDate(line[len(pattern):]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
