package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/api"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/application/factories/infrastructure"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/config"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/consumer"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/logger"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/postgres"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/usecase"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, consumer.SearchConsumer)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	searchRepo := postgres.NewSearchRepository(pgPool)
	inboxRepo := postgres.NewInboxRepository(pgPool)

	indexer := consumer.NewSearchIndexer(searchRepo, inboxRepo, log).
		WithTransactor(postgres.NewTxManager(pgPool))
	runner := consumer.NewRunner(bus, log)
	runner.Handle(event.ContentCreated, indexer.HandleCreated)
	runner.Handle(event.ContentDeleted, indexer.HandleDeleted)

	handlers := api.NewSearchHandlers(usecase.NewSearchPosts(searchRepo))
	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: api.NewSearchRouter(handlers),
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(ctx); err != nil {
			log.Error("consumer stopped with error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		log.Warn("consumer did not drain in time")
	}

	log.Info("search service exiting")
}
