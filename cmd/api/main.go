package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/api"
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

	// The API shares the scheduler so forced status passes go through the
	// same single-flight and persistence path as periodic batches.
	sched := scheduler.New(store, runner.New(checkers, logger), notifiers, metrics.NewCollector(), scheduler.Config{
		Interval: cfg.Checks.Interval,
		Workers:  cfg.Checks.WorkerCount,
		Runner: runner.Config{
			SSLThresholds:    cfg.Thresholds.SSL,
			DomainThresholds: cfg.Thresholds.Domain,
			WHOISRecheck:     cfg.Checks.WHOISRecheck,
			PassTimeout:      cfg.Checks.PassTimeout,
		},
	}, logger)

	server := api.NewServer(cfg.Server.Mode, store, sched, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down api server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("api server exited")
}

func openStore(cfg config.StoreConfig) (storage.TargetStore, error) {
	if cfg.Backend == "postgres" {
		return postgres.Open(cfg.DatabaseURL)
	}
	return jsonfile.Open(cfg.Path)
}
