package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rmarins/sitesentry/internal/checks"
	"github.com/rmarins/sitesentry/internal/core"
	"github.com/rmarins/sitesentry/internal/runner"
)

type Collector struct {
	checkDuration *prometheus.HistogramVec
	checkOK       *prometheus.GaugeVec
	checksTotal   *prometheus.CounterVec

	httpResponseCode   *prometheus.GaugeVec
	sslDaysUntilExpiry *prometheus.GaugeVec
	sslCertValid       *prometheus.GaugeVec
	domainDaysExpiry   *prometheus.GaugeVec
	dnsRecordCount     *prometheus.GaugeVec

	eventsEmitted       *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec

	passDuration  prometheus.Histogram
	targetsTotal  prometheus.Gauge
	lastPassStart prometheus.Gauge
}

func NewCollector() *Collector {
	return &Collector{
		checkDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesentry_check_duration_seconds",
				Help:    "Duration of individual checks",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind", "target"},
		),
		checkOK: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesentry_check_ok",
				Help: "Whether the last check of this kind succeeded (1) or failed (0)",
			},
			[]string{"kind", "target"},
		),
		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesentry_checks_total",
				Help: "Total check attempts by kind and outcome",
			},
			[]string{"kind", "target", "outcome"},
		),
		httpResponseCode: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesentry_http_response_code",
				Help: "HTTP status code observed by the last reachability check",
			},
			[]string{"target"},
		),
		sslDaysUntilExpiry: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesentry_ssl_days_until_expiry",
				Help: "Days until the certificate expires",
			},
			[]string{"target"},
		),
		sslCertValid: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesentry_ssl_cert_valid",
				Help: "Whether the certificate chain is currently valid",
			},
			[]string{"target"},
		),
		domainDaysExpiry: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesentry_domain_days_until_expiry",
				Help: "Days until the domain registration expires (last known)",
			},
			[]string{"target"},
		),
		dnsRecordCount: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitesentry_dns_record_count",
				Help: "Number of records in the last successful resolution",
			},
			[]string{"target", "record_type"},
		),
		eventsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesentry_events_emitted_total",
				Help: "Notification events produced by the check engine",
			},
			[]string{"metric", "kind"},
		),
		notificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesentry_notifications_failed_total",
				Help: "Events that could not be delivered to a sink",
			},
			[]string{"metric", "kind"},
		),
		passDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitesentry_pass_duration_seconds",
				Help:    "Duration of a full per-target check pass",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		targetsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesentry_targets",
				Help: "Targets covered by the last scheduler batch",
			},
		),
		lastPassStart: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesentry_last_batch_start_timestamp_seconds",
				Help: "When the last scheduler batch started",
			},
		),
	}
}

// RecordReport folds one pass report into the metric state.
func (c *Collector) RecordReport(report *runner.Report) {
	target := report.Target.URL

	for kind, outcome := range report.Outcomes {
		c.checkDuration.WithLabelValues(string(kind), target).Observe(outcome.Duration.Seconds())
		if outcome.OK() {
			c.checkOK.WithLabelValues(string(kind), target).Set(1)
			c.checksTotal.WithLabelValues(string(kind), target, "ok").Inc()
		} else {
			c.checkOK.WithLabelValues(string(kind), target).Set(0)
			c.checksTotal.WithLabelValues(string(kind), target, string(outcome.Err.Kind)).Inc()
		}
	}

	if o, ok := report.Outcomes[checks.KindHTTP]; ok && o.OK() {
		c.httpResponseCode.WithLabelValues(target).Set(float64(o.HTTP.StatusCode))
	}
	if o, ok := report.Outcomes[checks.KindTLS]; ok && o.OK() {
		c.sslDaysUntilExpiry.WithLabelValues(target).Set(float64(o.TLS.DaysLeft))
		if o.TLS.Valid {
			c.sslCertValid.WithLabelValues(target).Set(1)
		} else {
			c.sslCertValid.WithLabelValues(target).Set(0)
		}
	}
	if report.Target.Domain.NotAfter != nil {
		days := time.Until(*report.Target.Domain.NotAfter).Hours() / 24
		c.domainDaysExpiry.WithLabelValues(target).Set(days)
	}
	if o, ok := report.Outcomes[checks.KindDNS]; ok && o.OK() {
		c.dnsRecordCount.WithLabelValues(target, "A").Set(float64(len(o.DNS.ARecords)))
		c.dnsRecordCount.WithLabelValues(target, "MX").Set(float64(len(o.DNS.MXRecords)))
	}

	for _, ev := range report.Events {
		c.eventsEmitted.WithLabelValues(string(ev.Metric), string(ev.Kind)).Inc()
	}
	c.passDuration.Observe(report.Duration.Seconds())
}

func (c *Collector) RecordNotificationFailure(ev core.Event) {
	c.notificationsFailed.WithLabelValues(string(ev.Metric), string(ev.Kind)).Inc()
}

func (c *Collector) RecordBatch(targetCount int, startedAt time.Time) {
	c.targetsTotal.Set(float64(targetCount))
	c.lastPassStart.Set(float64(startedAt.Unix()))
}
