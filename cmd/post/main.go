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
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/cache"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/config"
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

	log := logger.New(cfg.Log.Level, "post-service")

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
	// an unreachable broker is not fatal: events are journaled and replayed
	if err := bus.Connect(ctx); err != nil {
		log.Warn("event bus unavailable at startup", "error", err)
	}

	redisClient := infraFactory.Redis(ctx)
	postCache := cache.New(redisClient, log)
	ttl := usecase.CacheTTL{Entity: cfg.Cache.EntityTTL, List: cfg.Cache.ListTTL}

	// Repositories
	postRepo := postgres.NewPostRepository(pgPool)
	outboxRepo := postgres.NewOutboxRepository(pgPool)
	inboxRepo := postgres.NewInboxRepository(pgPool)

	// UseCases
	createPostUC := usecase.NewCreatePost(postRepo, bus, outboxRepo, postCache, log)
	getPostUC := usecase.NewGetPost(postRepo, postCache, ttl)
	listPostsUC := usecase.NewListPosts(postRepo, postCache, ttl)
	deletePostUC := usecase.NewDeletePost(postRepo, bus, outboxRepo, postCache, ttl, log)
	getPropagationUC := usecase.NewGetPropagation(postRepo, outboxRepo, inboxRepo)

	handlers := api.NewPostHandlers(createPostUC, getPostUC, listPostsUC, deletePostUC, getPropagationUC)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: api.NewPostRouter(handlers, redisClient),
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exiting")
}
