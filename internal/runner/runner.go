package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/checks"
	"github.com/rmarins/sitesentry/internal/core"
)

// Config is the immutable per-pass configuration. The scheduler hands a
// snapshot to every pass so a config reload cannot change semantics
// mid-batch.
type Config struct {
	SSLThresholds    []int
	DomainThresholds []int
	// WHOISRecheck is how long a cached domain expiry stays fresh before
	// a scheduled pass re-queries the registry. Forced passes ignore it.
	WHOISRecheck time.Duration
	// PassTimeout bounds one full pass for one target.
	PassTimeout time.Duration
}

// Report is the outcome of one check pass for one target.
type Report struct {
	Target    *core.Target
	Outcomes  map[checks.Kind]checks.Outcome
	Events    []core.Event
	StartedAt time.Time
	Duration  time.Duration
}

// Runner executes one evaluation pass for one target: every enabled
// checker runs, each isolated from the others, results are merged into
// the target's cached state and threshold/flip events are produced.
type Runner struct {
	checkers map[checks.Kind]checks.Checker
	logger   *zap.Logger
	now      func() time.Time
}

func New(checkers []checks.Checker, logger *zap.Logger) *Runner {
	m := make(map[checks.Kind]checks.Checker, len(checkers))
	for _, c := range checkers {
		m[c.Kind()] = c
	}
	return &Runner{checkers: m, logger: logger, now: time.Now}
}

// Pass runs all checkers for t and mutates its cached state. force makes
// WHOIS ignore the freshness backoff (interactive status requests must
// not serve an arbitrarily old registry answer).
func (r *Runner) Pass(ctx context.Context, t *core.Target, cfg Config, force bool) *Report {
	report := &Report{
		Target:    t,
		Outcomes:  make(map[checks.Kind]checks.Outcome),
		StartedAt: r.now().UTC(),
	}

	if cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PassTimeout)
		defer cancel()
	}

	prevHTTP := t.HTTP
	prevTLS := t.TLS

	if c, ok := r.checkers[checks.KindHTTP]; ok {
		o := r.run(ctx, c, t.URL)
		report.Outcomes[checks.KindHTTP] = o
		applyHTTP(t, o)
	}

	if c, ok := r.checkers[checks.KindTLS]; ok {
		o := r.run(ctx, c, t.URL)
		report.Outcomes[checks.KindTLS] = o
		applyTLS(t, o)
	}

	if c, ok := r.checkers[checks.KindWHOIS]; ok {
		if force || r.whoisStale(t, cfg.WHOISRecheck) {
			o := r.run(ctx, c, t.URL)
			report.Outcomes[checks.KindWHOIS] = o
			applyWHOIS(t, o)
		}
	}

	if c, ok := r.checkers[checks.KindDNS]; ok {
		o := r.run(ctx, c, t.URL)
		report.Outcomes[checks.KindDNS] = o
		applyDNS(t, o)
	}

	now := r.now()
	sslExpired := t.TLS.Valid != nil && !*t.TLS.Valid
	report.Events = append(report.Events,
		evaluateExpiry(t, core.MetricSSL, t.TLS.NotAfter, sslExpired, cfg.SSLThresholds, now)...)
	report.Events = append(report.Events,
		evaluateExpiry(t, core.MetricDomain, t.Domain.NotAfter, false, cfg.DomainThresholds, now)...)
	report.Events = append(report.Events, flipEvents(t, prevHTTP, prevTLS)...)

	t.UpdatedAt = now.UTC()
	report.Duration = time.Since(report.StartedAt)
	return report
}

// run isolates one checker: a panic inside it becomes a CheckFailed
// outcome instead of killing the whole pass.
func (r *Runner) run(ctx context.Context, c checks.Checker, url string) (out checks.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("checker panicked",
				zap.String("kind", string(c.Kind())),
				zap.String("target", url),
				zap.Any("panic", rec),
			)
			out = checks.Outcome{
				Kind: c.Kind(),
				At:   r.now().UTC(),
				Err:  &checks.Failure{Kind: checks.FailCheckFailed, Err: fmt.Errorf("panic: %v", rec)},
			}
		}
	}()
	return c.Check(ctx, url)
}

func (r *Runner) whoisStale(t *core.Target, recheck time.Duration) bool {
	if recheck <= 0 || t.Domain.LastChecked.IsZero() || t.Domain.NotAfter == nil {
		return true
	}
	return r.now().Sub(t.Domain.LastChecked) >= recheck
}

// flipEvents emits one event per health transition: down once when a
// previously healthy endpoint stops answering, recovered once when it
// comes back. Unknown states (never checked, TLS result indeterminate)
// never flap.
func flipEvents(t *core.Target, prevHTTP core.HTTPState, prevTLS core.TLSState) []core.Event {
	var events []core.Event

	if !prevHTTP.LastChecked.IsZero() {
		wasUp, isUp := prevHTTP.Up(), t.HTTP.Up()
		switch {
		case wasUp && !isUp:
			msg := t.HTTP.Failure
			if msg == "" {
				msg = fmt.Sprintf("status %d", t.HTTP.StatusCode)
			}
			events = append(events, core.NewEvent(t.URL, core.MetricHTTP, core.EventDown, 0, msg))
		case !wasUp && isUp:
			events = append(events, core.NewEvent(t.URL, core.MetricHTTP, core.EventRecovered, 0,
				fmt.Sprintf("status %d", t.HTTP.StatusCode)))
		}
	}

	if prevTLS.Valid != nil && !*prevTLS.Valid && t.TLS.Valid != nil && *t.TLS.Valid {
		events = append(events, core.NewEvent(t.URL, core.MetricSSL, core.EventRecovered, 0, "certificate valid again"))
	}

	return events
}
