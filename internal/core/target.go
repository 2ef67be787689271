package core

import (
	"sort"
	"time"
)

// Metric names the countdown a notification refers to.
type Metric string

const (
	MetricSSL    Metric = "ssl"
	MetricDomain Metric = "domain"
	MetricHTTP   Metric = "http"
)

// DisplayFlags are presentation hints for the chat layer. The check
// engine passes them through untouched.
type DisplayFlags struct {
	ShowSSL bool `json:"show_ssl"`
	ShowDNS bool `json:"show_dns"`
}

// HTTPState is the outcome of the last reachability check. It is not
// cache-merged: a stale liveness result carries no evidence.
type HTTPState struct {
	StatusCode  int       `json:"status_code,omitempty"`
	Failure     string    `json:"failure,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// Up reports whether the last HTTP check saw a healthy response.
func (s HTTPState) Up() bool {
	return s.Failure == "" && s.StatusCode >= 200 && s.StatusCode < 400
}

// TLSState is the outcome of the last certificate check. Valid stays nil
// until the first check that produced a parseable certificate.
type TLSState struct {
	Valid       *bool      `json:"valid,omitempty"`
	NotAfter    *time.Time `json:"not_after,omitempty"`
	LastChecked time.Time  `json:"last_checked,omitempty"`
}

// DomainState holds the last known WHOIS data. NotAfter and the registrar
// fields survive failed lookups; only LastChecked/LastError move.
type DomainState struct {
	NotAfter      *time.Time `json:"not_after,omitempty"`
	RegistrarName string     `json:"registrar_name,omitempty"`
	RegistrarURL  string     `json:"registrar_url,omitempty"`
	LastChecked   time.Time  `json:"last_checked,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type MXRecord struct {
	Priority uint16 `json:"priority"`
	Host     string `json:"host"`
}

// DNSState holds the last known resolution data, same cache discipline
// as DomainState.
type DNSState struct {
	ARecords    []string   `json:"a_records,omitempty"`
	MXRecords   []MXRecord `json:"mx_records,omitempty"`
	LastChecked time.Time  `json:"last_checked,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Target is one monitored endpoint owned by a single user.
type Target struct {
	URL     string       `json:"url" db:"url"`
	Owner   string       `json:"owner" db:"owner"`
	Display DisplayFlags `json:"display"`

	HTTP   HTTPState   `json:"http"`
	TLS    TLSState    `json:"tls"`
	Domain DomainState `json:"domain"`
	DNS    DNSState    `json:"dns"`

	// Thresholds already fired for the current expiry dates. Reset
	// whenever the corresponding not_after value changes.
	NotifiedSSL    []int `json:"notified_ssl_thresholds"`
	NotifiedDomain []int `json:"notified_domain_thresholds"`

	// The expiry dates the notified sets were computed against. A fired
	// threshold is only valid for the date it was armed on, and the date
	// must survive passes where the live check failed and blanked the
	// observed not_after.
	NotifiedSSLFor    *time.Time `json:"notified_ssl_for,omitempty"`
	NotifiedDomainFor *time.Time `json:"notified_domain_for,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (t *Target) notified(metric Metric) *[]int {
	if metric == MetricDomain {
		return &t.NotifiedDomain
	}
	return &t.NotifiedSSL
}

// HasNotified reports whether threshold days already fired for metric
// against its current expiry date.
func (t *Target) HasNotified(metric Metric, days int) bool {
	for _, d := range *t.notified(metric) {
		if d == days {
			return true
		}
	}
	return false
}

// MarkNotified records that threshold days fired for metric.
func (t *Target) MarkNotified(metric Metric, days int) {
	if t.HasNotified(metric, days) {
		return
	}
	set := t.notified(metric)
	*set = append(*set, days)
	sort.Sort(sort.Reverse(sort.IntSlice(*set)))
}

// ResetNotified re-arms every threshold for metric. Called when the
// expiry date the fired thresholds were computed from changes.
func (t *Target) ResetNotified(metric Metric) {
	*t.notified(metric) = nil
}

// ArmedFor returns the expiry date the metric's notified set was
// computed against, or nil if nothing fired yet.
func (t *Target) ArmedFor(metric Metric) *time.Time {
	if metric == MetricDomain {
		return t.NotifiedDomainFor
	}
	return t.NotifiedSSLFor
}

// Arm re-binds the metric's notified set to a new expiry date, clearing
// any thresholds fired against the previous one.
func (t *Target) Arm(metric Metric, notAfter time.Time) {
	t.ResetNotified(metric)
	armed := notAfter
	if metric == MetricDomain {
		t.NotifiedDomainFor = &armed
	} else {
		t.NotifiedSSLFor = &armed
	}
}
