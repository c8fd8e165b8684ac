package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
)

type Config struct {
	Addr     string
	Password string // optional
	DB       int    // optional
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := NewLazyClient(cfg)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperr.Connection("redis", fmt.Errorf("failed to ping redis: %w", err))
	}

	return client, nil
}

// NewLazyClient builds a client without checking the server. Connections are
// dialed per command, so it starts working once Redis becomes reachable.
func NewLazyClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
