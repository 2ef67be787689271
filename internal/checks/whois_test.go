package checks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWhois = `Domain Name: EXAMPLE.COM
Registry Domain ID: 2336799_DOMAIN_COM-VRSN
Registrar WHOIS Server: whois.iana.org
Registrar URL: http://res-dom.iana.org
Updated Date: 2025-08-14T07:01:31Z
Creation Date: 1995-08-14T04:00:00Z
Registry Expiry Date: 2030-08-13T04:00:00Z
Registrar: RESERVED-Internet Assigned Numbers Authority
Registrar IANA ID: 376
Domain Status: clientDeleteProhibited https://icann.org/epp#clientDeleteProhibited
Name Server: A.IANA-SERVERS.NET
Name Server: B.IANA-SERVERS.NET
DNSSEC: signedDelegation
`

func newTestWHOISChecker(lookup func(domain string) (string, error)) *WHOISChecker {
	c := NewWHOISChecker(time.Second, nil)
	c.lookup = lookup
	return c
}

func TestWHOISCheckOK(t *testing.T) {
	var asked string
	c := newTestWHOISChecker(func(domain string) (string, error) {
		asked = domain
		return sampleWhois, nil
	})

	out := c.Check(context.Background(), "https://www.example.com")
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, "example.com", asked)
	assert.Equal(t, time.Date(2030, 8, 13, 4, 0, 0, 0, time.UTC), out.WHOIS.NotAfter.UTC())
	assert.Equal(t, "RESERVED-Internet Assigned Numbers Authority", out.WHOIS.RegistrarName)
}

func TestWHOISCheckLookupError(t *testing.T) {
	c := newTestWHOISChecker(func(string) (string, error) {
		return "", errors.New("whois: connect: network unreachable")
	})

	out := c.Check(context.Background(), "https://example.com")
	require.False(t, out.OK())
	assert.Equal(t, FailNoServer, out.Err.Kind)
}

func TestWHOISCheckUnparseableResponse(t *testing.T) {
	c := newTestWHOISChecker(func(string) (string, error) {
		return "% quota exceeded, try again later", nil
	})

	out := c.Check(context.Background(), "https://example.com")
	require.False(t, out.OK())
	assert.Equal(t, FailParse, out.Err.Kind)
}

func TestWHOISCheckNoRegistrableDomain(t *testing.T) {
	c := newTestWHOISChecker(func(string) (string, error) {
		t.Fatal("lookup must not run without a registrable domain")
		return "", nil
	})

	out := c.Check(context.Background(), "https://localhost")
	require.False(t, out.OK())
	assert.Equal(t, FailNoServer, out.Err.Kind)
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://example.com", want: "example.com"},
		{in: "https://www.example.com", want: "example.com"},
		{in: "https://www.api.example.co.uk", want: "example.co.uk"},
		{in: "example.com", want: "example.com"},
		{in: "https://example.com:8443", want: "example.com"},
		{in: "https://localhost", wantErr: true},
	}
	for _, tt := range tests {
		got, err := RegistrableDomain(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseWhoisDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2030-08-13T04:00:00Z", want: time.Date(2030, 8, 13, 4, 0, 0, 0, time.UTC)},
		{in: "2030-08-13 04:00:00", want: time.Date(2030, 8, 13, 4, 0, 0, 0, time.UTC)},
		{in: "2030-08-13", want: time.Date(2030, 8, 13, 0, 0, 0, 0, time.UTC)},
		{in: "13-Aug-2030", want: time.Date(2030, 8, 13, 0, 0, 0, 0, time.UTC)},
		{in: "2030.08.13", want: time.Date(2030, 8, 13, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseWhoisDate(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.True(t, got.Equal(tt.want), "input %q: got %s", tt.in, got)
	}

	_, err := parseWhoisDate("")
	assert.Error(t, err)
	_, err = parseWhoisDate("not a date")
	assert.Error(t, err)
}

func TestExtractExpiryDate(t *testing.T) {
	raw := "domain: EXAMPLE.RU\nstate: REGISTERED, DELEGATED, VERIFIED\npaid-till: 2030-08-13T04:00:00Z\n"
	got, ok := extractExpiryDate(raw)
	require.True(t, ok)
	assert.Equal(t, time.Date(2030, 8, 13, 4, 0, 0, 0, time.UTC), got.UTC())

	_, ok = extractExpiryDate("no dates here")
	assert.False(t, ok)
}
