package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/config"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/kafka"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/memory"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/postgres"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/rabbitmq"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/redis"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/s3"
)

type Factory struct {
	cfg      *config.Config
	logger   *slog.Logger
	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	bus      eventbus.Bus
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres, retrying in 2s", "attempt", i+1, "error", err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

// Redis returns nil when caching is disabled. An unreachable Redis is not
// fatal: the client is kept, the cache runs degraded while commands fail and
// recovers once Redis answers again.
func (f *Factory) Redis(ctx context.Context) *go_redis.Client {
	if f.redisCli != nil || !f.cfg.Cache.Enabled {
		return f.redisCli
	}

	cfg := redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	}
	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		f.logger.Warn("redis unavailable, cache degraded until it answers", "error", err)
		client = redis.NewLazyClient(cfg)
	}

	f.redisCli = client
	return client
}

// Bus builds the configured transport. It does not connect; the first
// Publish or Subscribe does.
func (f *Factory) Bus() (eventbus.Bus, error) {
	if f.bus != nil {
		return f.bus, nil
	}

	switch f.cfg.Bus.Provider {
	case config.BusProviderRabbitMQ:
		f.bus = rabbitmq.New(rabbitmq.Config{
			URI:         f.cfg.RabbitMQ.URI,
			Exchange:    f.cfg.RabbitMQ.Exchange,
			Prefetch:    f.cfg.RabbitMQ.Prefetch,
			Concurrency: f.cfg.RabbitMQ.Concurrency,
			RequeueWait: f.cfg.Bus.RequeueWait,
			Logger:      f.logger,
		})
	case config.BusProviderKafka:
		f.bus = kafka.New(kafka.Config{
			Brokers:     f.cfg.Kafka.Brokers,
			Topic:       f.cfg.Kafka.Topic,
			GroupPrefix: f.cfg.Kafka.GroupPrefix,
			RequeueWait: f.cfg.Bus.RequeueWait,
			Logger:      f.logger,
		})
	case config.BusProviderMemory:
		f.bus = eventbus.NewMemory(eventbus.DispatchOptions{
			RequeueWait: f.cfg.Bus.RequeueWait,
			Logger:      f.logger,
		})
	default:
		return nil, fmt.Errorf("unknown bus provider %q", f.cfg.Bus.Provider)
	}

	return f.bus, nil
}

// BlobStore uses S3 when a bucket is configured and an in-process store
// otherwise.
func (f *Factory) BlobStore(ctx context.Context) (media.BlobStore, error) {
	if f.cfg.S3.Bucket == "" {
		f.logger.Warn("no S3 bucket configured, media blobs are kept in memory")
		return memory.NewBlobStore(""), nil
	}

	store, err := s3.New(ctx, s3.Config{
		Region:          f.cfg.S3.Region,
		Bucket:          f.cfg.S3.Bucket,
		AccessKeyID:     f.cfg.S3.AccessKeyID,
		SecretAccessKey: f.cfg.S3.SecretAccessKey,
		Endpoint:        f.cfg.S3.Endpoint,
		UsePathStyle:    f.cfg.S3.UsePathStyle,
		PublicBaseURL:   f.cfg.S3.PublicBaseURL,
		KeyPrefix:       f.cfg.S3.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init s3: %w", err)
	}
	return store, nil
}

func (f *Factory) Close() {
	if f.bus != nil {
		if err := f.bus.Close(); err != nil {
			f.logger.Error("failed to close bus", "error", err)
		}
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
}
