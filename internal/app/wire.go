package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/pricesync/internal/blob/s3"
	"github.com/alanyoungcy/pricesync/internal/cache/redis"
	"github.com/alanyoungcy/pricesync/internal/config"
	"github.com/alanyoungcy/pricesync/internal/domain"
	"github.com/alanyoungcy/pricesync/internal/metrics"
	"github.com/alanyoungcy/pricesync/internal/notify"
	"github.com/alanyoungcy/pricesync/internal/platform/llama"
	"github.com/alanyoungcy/pricesync/internal/server/handler"
	"github.com/alanyoungcy/pricesync/internal/store/memory"
	"github.com/alanyoungcy/pricesync/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Assets    domain.AssetStore
	WindowLog domain.WindowLog
	// Cache is nil when Redis is disabled.
	Cache  domain.AssetCache
	Bus    domain.UpdateBus
	Source domain.PriceSource

	// Blob is nil unless snapshot archiving is enabled.
	Blob domain.BlobWriter

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Checks are the readiness checks reported by the health endpoint.
	Checks map[string]handler.Checker
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Checker),
		Source:  llama.NewClient(cfg.PriceSource.BaseURL, cfg.PriceSource.Timeout.Duration),
	}

	// --- Asset storage ---
	switch strings.ToLower(cfg.Storage) {
	case "memory":
		logger.Warn("wire: using in-memory asset storage; records are lost on exit")
		deps.Assets = memory.NewAssetStore()
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Assets = postgres.NewAssetStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis: shared window log, cache and update bus ---
	if cfg.Redis.Enabled {
		redisCfg := redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		}
		redisClient, err := redis.New(ctx, redisCfg)
		if err != nil {
			// Keep running on a lazy client; it reconnects once Redis is
			// back and the limiter fails open until then.
			logger.Warn("wire: redis unreachable at startup; continuing, throttling is skipped until it recovers",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
			redisClient = redis.NewLazy(redisCfg)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.WindowLog = redis.NewWindowLog(redisClient)
		deps.Cache = redis.NewAssetCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.Bus = redis.NewUpdateBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.Warn("wire: redis disabled; the rate-limit window only covers this process")
		deps.WindowLog = memory.NewWindowLog()
		deps.Bus = memory.NewUpdateBus()
	}

	// --- S3 snapshot storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blob = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(logger, senders...)

	return deps, cleanup, nil
}
