package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/application/factories/infrastructure"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/config"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/logger"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/postgres"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, "worker")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.Serve(":"+cfg.Metrics.Port, log)

	// Infrastructure
	infraFactory := infrastructure.NewFactory(cfg, log)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	bus, err := infraFactory.Bus()
	if err != nil {
		log.Error("failed to init event bus", "error", err)
		os.Exit(1)
	}

	// Dependencies
	outboxRepo := postgres.NewOutboxRepository(pgPool)
	searchRepo := postgres.NewSearchRepository(pgPool)

	poller := worker.NewOutboxPoller(outboxRepo, bus, cfg.Worker.BatchSize, log)
	purger := worker.NewTombstonePurger(searchRepo, cfg.Worker.TombstoneRetention, log)

	w := worker.New(log)
	if err := w.Add(cfg.Worker.Schedule, "outbox-republish", poller.ProcessBatch); err != nil {
		log.Error("failed to schedule job", "error", err)
		os.Exit(1)
	}
	if err := w.Add(cfg.Worker.PurgeSchedule, "search-tombstone-purge", purger.Purge); err != nil {
		log.Error("failed to schedule job", "error", err)
		os.Exit(1)
	}

	// Run
	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "error", err)
	}

	log.Info("worker exited")
}
