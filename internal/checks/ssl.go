package checks

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"syscall"
	"time"
)

// TLSChecker inspects the certificate presented on the target's TLS port.
// The handshake itself skips verification so an expired-but-parseable
// certificate still yields a result; the chain is then verified manually
// against Roots. Expired is a successful check with Valid=false, not a
// failure — the threshold tracker needs the date either way.
type TLSChecker struct {
	timeout time.Duration
	// Roots is the trusted pool for chain verification. Nil means the
	// system pool.
	Roots *x509.CertPool
	// AllowPrivate disables the dial-time address guard (tests).
	AllowPrivate bool

	now func() time.Time
}

func NewTLSChecker(timeout time.Duration) *TLSChecker {
	return &TLSChecker{timeout: timeout, now: time.Now}
}

func (c *TLSChecker) Kind() Kind { return KindTLS }

func (c *TLSChecker) Check(ctx context.Context, targetURL string) Outcome {
	out := start(KindTLS)

	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		out.Err = failure(FailCheckFailed, fmt.Errorf("invalid target url %q", targetURL))
		return out.done()
	}
	host := u.Hostname()
	// An explicit port wins regardless of scheme; only bare URLs default
	// to 443.
	port := u.Port()
	if port == "" {
		port = "443"
	}

	dialer := guardedDialer(c.timeout, c.AllowPrivate)
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rawConn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		out.Err = failure(classifyDialError(err), err)
		return out.done()
	}
	defer rawConn.Close()

	conn := tls.Client(rawConn, &tls.Config{
		ServerName: host,
		// Verification happens below so an expired leaf still parses.
		InsecureSkipVerify: true,
	})
	if err := conn.HandshakeContext(dialCtx); err != nil {
		if isTimeout(err) {
			out.Err = failure(FailTimeout, err)
		} else {
			out.Err = failure(FailHandshake, err)
		}
		return out.done()
	}

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		out.Err = failure(FailHandshake, errors.New("no certificates presented"))
		return out.done()
	}
	leaf := certs[0]

	now := c.now()
	valid, verifyErr := c.verifyChain(certs, host, now)
	if verifyErr != nil {
		out.Err = failure(FailChainInvalid, verifyErr)
		return out.done()
	}

	out.TLS = &TLSResult{
		Valid:    valid,
		NotAfter: leaf.NotAfter,
		DaysLeft: daysUntil(now, leaf.NotAfter),
		Issuer:   leaf.Issuer.String(),
	}
	return out.done()
}

// verifyChain returns (valid, nil) when the chain checks out, (false, nil)
// when the only problem is validity dates, and (false, err) for real chain
// defects (untrusted issuer, name mismatch).
func (c *TLSChecker) verifyChain(certs []*x509.Certificate, host string, now time.Time) (bool, error) {
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         c.Roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	if err == nil {
		if now.After(certs[0].NotAfter) {
			return false, nil
		}
		return true, nil
	}

	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		return false, nil
	}
	return false, err
}

func classifyDialError(err error) FailureKind {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailConnectionRefused
	case isDNSError(err):
		return FailDNSResolution
	case isTimeout(err):
		return FailTimeout
	default:
		var guardErr *Failure
		if errors.As(err, &guardErr) {
			return guardErr.Kind
		}
		return FailConnectionRefused
	}
}

// daysUntil rounds up: a certificate expiring in 30.2 days is 31 days out.
func daysUntil(now, notAfter time.Time) int {
	return int(math.Ceil(notAfter.Sub(now).Hours() / 24))
}
