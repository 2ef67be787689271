package runner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmarins/sitesentry/internal/checks"
	"github.com/rmarins/sitesentry/internal/core"
)

func failedOutcome(kind checks.Kind, fk checks.FailureKind, at time.Time) checks.Outcome {
	return checks.Outcome{Kind: kind, At: at, Err: &checks.Failure{Kind: fk, Err: errors.New("boom")}}
}

func TestApplyHTTPReplacesState(t *testing.T) {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tgt := &core.Target{HTTP: core.HTTPState{StatusCode: 200, LastChecked: at.Add(-time.Hour)}}

	applyHTTP(tgt, failedOutcome(checks.KindHTTP, checks.FailTimeout, at))
	assert.Equal(t, 0, tgt.HTTP.StatusCode, "a stale status must not survive a failed attempt")
	assert.Equal(t, "timeout", tgt.HTTP.Failure)
	assert.Equal(t, at, tgt.HTTP.LastChecked)

	applyHTTP(tgt, checks.Outcome{Kind: checks.KindHTTP, At: at, HTTP: &checks.HTTPResult{StatusCode: 301}})
	assert.Equal(t, 301, tgt.HTTP.StatusCode)
	assert.Empty(t, tgt.HTTP.Failure)
}

func TestApplyTLSReplacesState(t *testing.T) {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	notAfter := at.Add(60 * 24 * time.Hour)
	valid := true
	tgt := &core.Target{TLS: core.TLSState{Valid: &valid, NotAfter: &notAfter}}

	applyTLS(tgt, failedOutcome(checks.KindTLS, checks.FailHandshake, at))
	assert.Nil(t, tgt.TLS.Valid, "a failed handshake says nothing about validity")
	assert.Nil(t, tgt.TLS.NotAfter)
	assert.Equal(t, at, tgt.TLS.LastChecked)

	applyTLS(tgt, checks.Outcome{Kind: checks.KindTLS, At: at, TLS: &checks.TLSResult{Valid: true, NotAfter: notAfter}})
	require.NotNil(t, tgt.TLS.Valid)
	assert.True(t, *tgt.TLS.Valid)
	require.NotNil(t, tgt.TLS.NotAfter)
	assert.True(t, tgt.TLS.NotAfter.Equal(notAfter))
}

func TestApplyWHOISPreservesCacheOnFailure(t *testing.T) {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	notAfter := at.Add(200 * 24 * time.Hour)
	tgt := &core.Target{Domain: core.DomainState{
		NotAfter:      &notAfter,
		RegistrarName: "Example Registrar",
		LastChecked:   at.Add(-48 * time.Hour),
	}}

	applyWHOIS(tgt, failedOutcome(checks.KindWHOIS, checks.FailRateLimited, at))
	require.NotNil(t, tgt.Domain.NotAfter, "the last known expiry must survive a failed lookup")
	assert.True(t, tgt.Domain.NotAfter.Equal(notAfter))
	assert.Equal(t, "Example Registrar", tgt.Domain.RegistrarName)
	assert.Equal(t, at, tgt.Domain.LastChecked)
	assert.NotEmpty(t, tgt.Domain.LastError)

	renewed := notAfter.Add(365 * 24 * time.Hour)
	applyWHOIS(tgt, checks.Outcome{Kind: checks.KindWHOIS, At: at, WHOIS: &checks.WHOISResult{
		NotAfter:      renewed,
		RegistrarName: "Other Registrar",
	}})
	assert.True(t, tgt.Domain.NotAfter.Equal(renewed))
	assert.Equal(t, "Other Registrar", tgt.Domain.RegistrarName)
	assert.Empty(t, tgt.Domain.LastError)
}

func TestApplyDNSPreservesCacheOnFailure(t *testing.T) {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tgt := &core.Target{DNS: core.DNSState{
		ARecords:  []string{"93.184.216.34"},
		MXRecords: []core.MXRecord{{Priority: 10, Host: "mail.example.com"}},
	}}

	applyDNS(tgt, failedOutcome(checks.KindDNS, checks.FailServerFailure, at))
	assert.Equal(t, []string{"93.184.216.34"}, tgt.DNS.ARecords)
	assert.Len(t, tgt.DNS.MXRecords, 1)
	assert.NotEmpty(t, tgt.DNS.LastError)

	applyDNS(tgt, checks.Outcome{Kind: checks.KindDNS, At: at, DNS: &checks.DNSResult{
		ARecords: []string{"93.184.216.35"},
	}})
	assert.Equal(t, []string{"93.184.216.35"}, tgt.DNS.ARecords)
	assert.Empty(t, tgt.DNS.LastError)
}
