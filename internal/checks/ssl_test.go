package checks

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTLSChecker(t *testing.T, srv *httptest.Server) *TLSChecker {
	t.Helper()
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	c := NewTLSChecker(2 * time.Second)
	c.Roots = pool
	c.AllowPrivate = true
	return c
}

func TestTLSCheckValidCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	out := newTestTLSChecker(t, srv).Check(context.Background(), srv.URL)
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, KindTLS, out.Kind)
	assert.True(t, out.TLS.Valid)
	assert.True(t, out.TLS.NotAfter.Equal(srv.Certificate().NotAfter))
	assert.Greater(t, out.TLS.DaysLeft, 0)
}

func TestTLSCheckExpiredCertificateIsAResult(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestTLSChecker(t, srv)
	// Advance the verification clock past the certificate's lifetime.
	c.now = func() time.Time { return srv.Certificate().NotAfter.Add(48 * time.Hour) }

	out := c.Check(context.Background(), srv.URL)
	require.True(t, out.OK(), "expired certificate must still produce a result: %v", out.Err)
	assert.False(t, out.TLS.Valid)
	assert.True(t, out.TLS.NotAfter.Equal(srv.Certificate().NotAfter))
	assert.Negative(t, out.TLS.DaysLeft)
}

func TestTLSCheckUntrustedChain(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewTLSChecker(2 * time.Second)
	c.Roots = x509.NewCertPool() // empty: nothing is trusted
	c.AllowPrivate = true

	out := c.Check(context.Background(), srv.URL)
	require.False(t, out.OK())
	assert.Equal(t, FailChainInvalid, out.Err.Kind)
}

func TestTLSCheckHonorsExplicitPort(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	// An http URL with an explicit port still gets its certificate
	// checked on that port, not on 443.
	out := newTestTLSChecker(t, srv).Check(context.Background(), "http://"+u.Host)
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.True(t, out.TLS.Valid)
}

func TestTLSCheckPlainTextPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := NewTLSChecker(2 * time.Second)
	c.AllowPrivate = true

	out := c.Check(context.Background(), "https://"+u.Host)
	require.False(t, out.OK())
	assert.Equal(t, FailHandshake, out.Err.Kind)
}

func TestTLSCheckConnectionRefused(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	c := NewTLSChecker(time.Second)
	c.AllowPrivate = true

	out := c.Check(context.Background(), target)
	require.False(t, out.OK())
	assert.Equal(t, FailConnectionRefused, out.Err.Kind)
}

func TestTLSCheckGuardBlocksLoopback(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	out := NewTLSChecker(time.Second).Check(context.Background(), srv.URL)
	require.False(t, out.OK())
	assert.Equal(t, FailDisallowedAddress, out.Err.Kind)
}
