package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/checks"
	"github.com/rmarins/sitesentry/internal/config"
	"github.com/rmarins/sitesentry/internal/logging"
	"github.com/rmarins/sitesentry/internal/metrics"
	"github.com/rmarins/sitesentry/internal/notify"
	"github.com/rmarins/sitesentry/internal/runner"
	"github.com/rmarins/sitesentry/internal/scheduler"
	"github.com/rmarins/sitesentry/internal/storage"
	"github.com/rmarins/sitesentry/internal/storage/jsonfile"
	"github.com/rmarins/sitesentry/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer logger.Sync()

	store, err := openStore(cfg.Store)
	if err != nil {
		logger.Fatal("failed to open target store", zap.Error(err))
	}

	checkers := []checks.Checker{
		checks.NewHTTPChecker(cfg.Checks.HTTPTimeout, checks.WithAttempts(cfg.Checks.HTTPAttempts)),
		checks.NewTLSChecker(cfg.Checks.TLSTimeout),
		checks.NewWHOISChecker(cfg.Checks.WHOISTimeout, nil),
		checks.NewDNSChecker(cfg.Checks.DNSTimeout),
	}

	notifiers := notify.Multi{&notify.LogNotifier{Logger: logger}}
	if wh := notify.NewWebhook(cfg.Notify.WebhookURL); wh != nil {
		notifiers = append(notifiers, wh)
	}

	collector := metrics.NewCollector()
	sched := scheduler.New(store, runner.New(checkers, logger), notifiers, collector, scheduler.Config{
		Interval: cfg.Checks.Interval,
		Workers:  cfg.Checks.WorkerCount,
		Runner: runner.Config{
			SSLThresholds:    cfg.Thresholds.SSL,
			DomainThresholds: cfg.Thresholds.Domain,
			WHOISRecheck:     cfg.Checks.WHOISRecheck,
			PassTimeout:      cfg.Checks.PassTimeout,
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	if cfg.RemoteWrite.URL != "" {
		writer := metrics.NewRemoteWriter(metrics.RemoteWriteConfig{
			URL:           cfg.RemoteWrite.URL,
			FlushInterval: cfg.RemoteWrite.FlushInterval,
			BatchSize:     cfg.RemoteWrite.BatchSize,
			AuthToken:     cfg.RemoteWrite.AuthToken,
		}, logger)
		go writer.Run(ctx)
	}

	// Scrape endpoint for deployments without remote write.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		if err := http.ListenAndServe(":"+cfg.Server.Port, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	logger.Info("scheduler daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler daemon")
	cancel()
	logger.Info("scheduler daemon exited")
}

func openStore(cfg config.StoreConfig) (storage.TargetStore, error) {
	if cfg.Backend == "postgres" {
		return postgres.Open(cfg.DatabaseURL)
	}
	return jsonfile.Open(cfg.Path)
}
