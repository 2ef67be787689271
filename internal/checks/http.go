package checks

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

const maxRedirects = 10

var errTooManyRedirects = errors.New("stopped after 10 redirects")

// HTTPChecker performs the reachability check: a HEAD request, falling
// back to GET when the server rejects HEAD, retried with exponential
// backoff and jitter. Any HTTP response is a successful check; only
// transport-level problems are failures.
type HTTPChecker struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
}

type HTTPOption func(*HTTPChecker)

// WithAttempts overrides the retry budget (default 3).
func WithAttempts(n int) HTTPOption {
	return func(c *HTTPChecker) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithoutAddressGuard disables the private-address dial guard. Test use
// only; httptest servers live on loopback.
func WithoutAddressGuard() HTTPOption {
	return func(c *HTTPChecker) {
		c.client.Transport.(*http.Transport).DialContext = (&net.Dialer{}).DialContext
	}
}

func NewHTTPChecker(timeout time.Duration, opts ...HTTPOption) *HTTPChecker {
	c := &HTTPChecker{
		attempts: 3,
		backoff:  500 * time.Millisecond,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:       guardedDialer(timeout, false).DialContext,
				DisableKeepAlives: true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPChecker) Kind() Kind { return KindHTTP }

func (c *HTTPChecker) Check(ctx context.Context, targetURL string) Outcome {
	out := start(KindHTTP)

	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
			select {
			case <-ctx.Done():
				out.Err = failure(FailTimeout, ctx.Err())
				return out.done()
			case <-time.After(backoff + jitter):
			}
			backoff *= 2
		}

		status, latency, err := c.request(ctx, targetURL)
		if err == nil {
			out.HTTP = &HTTPResult{StatusCode: status, Latency: latency}
			return out.done()
		}
		lastErr = err
	}

	out.Err = failure(classifyHTTPError(lastErr), lastErr)
	return out.done()
}

func (c *HTTPChecker) request(ctx context.Context, targetURL string) (int, time.Duration, error) {
	startAt := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "sitesentry/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, time.Since(startAt), err
	}
	resp.Body.Close()

	// Some servers refuse HEAD outright; retry the same URL with GET.
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
		if err != nil {
			return 0, 0, fmt.Errorf("build request: %w", err)
		}
		req2.Header.Set("User-Agent", "sitesentry/1.0")
		resp2, err := c.client.Do(req2)
		if err != nil {
			return 0, time.Since(startAt), err
		}
		resp2.Body.Close()
		return resp2.StatusCode, time.Since(startAt), nil
	}

	return resp.StatusCode, time.Since(startAt), nil
}

func classifyHTTPError(err error) FailureKind {
	switch {
	case err == nil:
		return FailCheckFailed
	case errors.Is(err, errTooManyRedirects):
		return FailTooManyRedirects
	case isDNSError(err):
		return FailDNSResolution
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailConnectionRefused
	case isTLSError(err):
		return FailTLSHandshake
	case isTimeout(err):
		return FailTimeout
	default:
		var guardErr *Failure
		if errors.As(err, &guardErr) {
			return guardErr.Kind
		}
		return FailCheckFailed
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
