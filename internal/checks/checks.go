package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/rmarins/sitesentry/internal/core"
)

// Kind identifies one of the four lookup mechanisms. The set is closed:
// each kind has its own result shape and cache semantics.
type Kind string

const (
	KindHTTP  Kind = "http"
	KindTLS   Kind = "tls"
	KindWHOIS Kind = "whois"
	KindDNS   Kind = "dns"
)

// FailureKind is the typed reason a check attempt produced no result.
type FailureKind string

const (
	FailTimeout           FailureKind = "timeout"
	FailConnectionRefused FailureKind = "connection_refused"
	FailTLSHandshake      FailureKind = "tls_handshake_failed"
	FailDNSResolution     FailureKind = "dns_resolution_failed"
	FailTooManyRedirects  FailureKind = "too_many_redirects"
	FailHandshake         FailureKind = "handshake_failed"
	FailChainInvalid      FailureKind = "chain_invalid"
	FailNXDomain          FailureKind = "nxdomain"
	FailServerFailure     FailureKind = "server_failure"
	FailNoAuthoritative   FailureKind = "no_authoritative_answer"
	FailRateLimited       FailureKind = "rate_limited"
	FailNoServer          FailureKind = "no_whois_server"
	FailParse             FailureKind = "parse_error"
	FailDisallowedAddress FailureKind = "disallowed_address"
	// FailCheckFailed is the catch-all an unexpected checker fault is
	// converted to. It never aborts the pass.
	FailCheckFailed FailureKind = "check_failed"
)

// Failure carries the kind plus the underlying error for logs.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func failure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

type HTTPResult struct {
	StatusCode int
	Latency    time.Duration
}

type TLSResult struct {
	Valid    bool
	NotAfter time.Time
	DaysLeft int
	Issuer   string
}

type WHOISResult struct {
	NotAfter      time.Time
	RegistrarName string
	RegistrarURL  string
}

type DNSResult struct {
	ARecords  []string
	MXRecords []core.MXRecord
	// Authoritative is false when the answers came from the public
	// fallback resolver instead of the zone's own name servers.
	Authoritative bool
}

// Outcome is the tagged result of one check attempt. Exactly one of the
// result pointers matching Kind is set on success; Err is set otherwise.
type Outcome struct {
	Kind     Kind
	HTTP     *HTTPResult
	TLS      *TLSResult
	WHOIS    *WHOISResult
	DNS      *DNSResult
	Err      *Failure
	Duration time.Duration
	At       time.Time
}

func (o Outcome) OK() bool { return o.Err == nil }

// Checker is the capability shared by the four check kinds. Implementations
// are stateless between calls and honor ctx for every network operation.
type Checker interface {
	Kind() Kind
	Check(ctx context.Context, targetURL string) Outcome
}

func start(kind Kind) Outcome {
	return Outcome{Kind: kind, At: time.Now().UTC()}
}

func (o Outcome) done() Outcome {
	o.Duration = time.Since(o.At)
	return o
}
