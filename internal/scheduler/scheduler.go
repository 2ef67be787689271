package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/core"
	"github.com/rmarins/sitesentry/internal/metrics"
	"github.com/rmarins/sitesentry/internal/notify"
	"github.com/rmarins/sitesentry/internal/runner"
	"github.com/rmarins/sitesentry/internal/storage"
)

// Config is the scheduler's immutable tick configuration.
type Config struct {
	Interval time.Duration
	Workers  int
	Runner   runner.Config
}

// Scheduler drives the periodic batch: every Interval it fans the runner
// out over all targets of all users with a bounded worker pool, persists
// each updated target and forwards events to the notifier. A single
// target failing never aborts the batch.
type Scheduler struct {
	store    storage.TargetStore
	runner   *runner.Runner
	notifier notify.Notifier
	metrics  *metrics.Collector
	logger   *zap.Logger
	cfg      Config

	inflight *singleFlight
}

func New(store storage.TargetStore, r *runner.Runner, notifier notify.Notifier, collector *metrics.Collector, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	return &Scheduler{
		store:    store,
		runner:   r,
		notifier: notifier,
		metrics:  collector,
		logger:   logger,
		cfg:      cfg,
		inflight: newSingleFlight(),
	}
}

// Run blocks until ctx is canceled. The first batch starts immediately;
// subsequent batches follow the ticker.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("workers", s.cfg.Workers),
	)

	s.runBatch(ctx, false)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runBatch(ctx, false)
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context, force bool) {
	startedAt := time.Now()
	targets, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("failed to list targets for batch", zap.Error(err))
		return
	}
	s.metrics.RecordBatch(len(targets), startedAt)
	s.logger.Info("starting check batch", zap.Int("targets", len(targets)))

	jobs := make(chan *core.Target)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				s.process(ctx, t, force)
			}
		}()
	}

	for _, t := range targets {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()

	s.logger.Info("check batch completed",
		zap.Int("targets", len(targets)),
		zap.Duration("duration", time.Since(startedAt)),
	)
}

// process runs one pass for one target, persists the result and emits
// events. Scheduled passes skip a target that already has a pass in
// flight and return nil; forced passes wait for it instead, so an
// interactive status request never silently misses a target.
func (s *Scheduler) process(ctx context.Context, t *core.Target, force bool) *runner.Report {
	key := t.Owner + "\x00" + t.URL
	if force {
		if err := s.inflight.Acquire(ctx, key); err != nil {
			return nil
		}
	} else if !s.inflight.TryAcquire(key) {
		s.logger.Debug("skipping target, pass already in flight", zap.String("target", t.URL))
		return nil
	}
	defer s.inflight.Release(key)

	report := s.runner.Pass(ctx, t, s.cfg.Runner, force)
	s.metrics.RecordReport(report)

	// Update never creates: a remove that landed while the pass was
	// running must not be undone by persisting the stale result.
	if err := s.store.Update(ctx, t); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("target removed during pass, dropping report", zap.String("target", t.URL))
			return nil
		}
		s.logger.Error("failed to persist target",
			zap.String("target", t.URL),
			zap.Error(err),
		)
	}

	for _, ev := range report.Events {
		if err := s.notifier.Send(ctx, ev); err != nil {
			s.metrics.RecordNotificationFailure(ev)
			s.logger.Error("failed to deliver notification",
				zap.String("event_id", ev.ID),
				zap.String("target", ev.TargetURL),
				zap.Error(err),
			)
		}
	}
	return report
}

// ForcePass runs a fresh pass over one user's targets for an interactive
// status request. Every check runs live — WHOIS included — rather than
// serving the cache.
func (s *Scheduler) ForcePass(ctx context.Context, owner string) ([]*runner.Report, error) {
	targets, err := s.store.ListUser(ctx, owner)
	if err != nil {
		return nil, err
	}

	reports := make([]*runner.Report, 0, len(targets))
	var mu sync.Mutex
	jobs := make(chan *core.Target)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				if report := s.process(ctx, t, true); report != nil {
					mu.Lock()
					reports = append(reports, report)
					mu.Unlock()
				}
			}
		}()
	}
	for _, t := range targets {
		jobs <- t
	}
	close(jobs)
	wg.Wait()
	return reports, nil
}
