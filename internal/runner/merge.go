package runner

import (
	"github.com/rmarins/sitesentry/internal/checks"
	"github.com/rmarins/sitesentry/internal/core"
)

// Merge policy, per check kind.
//
// HTTP and TLS are live checks: the attempt result is the new state, a
// past success says nothing about the present. WHOIS and DNS are slow,
// third-party sourced facts: a failed attempt only advances freshness and
// error metadata, never erasing the last known value.

func applyHTTP(t *core.Target, o checks.Outcome) {
	state := core.HTTPState{LastChecked: o.At}
	if o.OK() {
		state.StatusCode = o.HTTP.StatusCode
	} else {
		state.Failure = string(o.Err.Kind)
	}
	t.HTTP = state
}

func applyTLS(t *core.Target, o checks.Outcome) {
	state := core.TLSState{LastChecked: o.At}
	if o.OK() {
		valid := o.TLS.Valid
		notAfter := o.TLS.NotAfter
		state.Valid = &valid
		state.NotAfter = &notAfter
	}
	t.TLS = state
}

func applyWHOIS(t *core.Target, o checks.Outcome) {
	t.Domain.LastChecked = o.At
	if !o.OK() {
		t.Domain.LastError = o.Err.Error()
		return
	}
	notAfter := o.WHOIS.NotAfter
	t.Domain.NotAfter = &notAfter
	t.Domain.RegistrarName = o.WHOIS.RegistrarName
	t.Domain.RegistrarURL = o.WHOIS.RegistrarURL
	t.Domain.LastError = ""
}

func applyDNS(t *core.Target, o checks.Outcome) {
	t.DNS.LastChecked = o.At
	if !o.OK() {
		t.DNS.LastError = o.Err.Error()
		return
	}
	t.DNS.ARecords = o.DNS.ARecords
	t.DNS.MXRecords = o.DNS.MXRecords
	t.DNS.LastError = ""
}
