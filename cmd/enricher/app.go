package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"listing_enricher/internal/config"
	"listing_enricher/internal/enrichment"
	"listing_enricher/internal/httpapi"
	"listing_enricher/internal/listing"
	"listing_enricher/internal/models"
	"listing_enricher/internal/providers"
	"listing_enricher/internal/queue"
	"listing_enricher/internal/quota"
	"listing_enricher/internal/ratelimit"
	"listing_enricher/internal/storage"
	"listing_enricher/internal/utils"
	"listing_enricher/internal/vault"
)

// counterTTL keeps daily Redis counters around a little past their day
const counterTTL = 48 * time.Hour

// app owns every long-lived component of the server
type app struct {
	handler     http.Handler
	store       storage.Store
	redis       *storage.RedisClient
	usageWorker *storage.UsageQueueWorker
	logger      *utils.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{logger: utils.NewLogger("enricher")}

	store, err := storage.Open(cfg.Store.Backend, cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	a.store = store

	if cfg.Redis.Address != "" {
		a.redis, err = storage.NewRedisClient(cfg.RedisClientConfig())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	registry := providers.NewRegistry(providers.Config{
		HTTPClient: providers.NewHTTPClient(cfg.Provider.RequestTimeout + 15*time.Second),
		Overrides:  cfg.Provider.Overrides,

		LocalAllowedHosts: cfg.Provider.LocalAllowedHosts,
	})

	v, err := vault.Open(vault.NewFileKeySource(cfg.Vault.KeyFile), store, registry)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open credential vault: %w", err)
	}

	var counters quota.Counters
	switch cfg.Quota.Backend {
	case config.BackendRedis:
		counters = quota.NewRedisCounters(a.redis.Client(), counterTTL)
	default:
		counters = quota.NewStoreCounters(store)
	}
	tracker := quota.NewTracker(counters, registry, quota.WithLocation(cfg.Quota.TimeZone))

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		limiter = ratelimit.NewRateLimiter(a.redis.Client())
	case config.BackendMemory:
		limiter = ratelimit.NewMemoryLimiter()
	default:
		limiter = ratelimit.NewNoopLimiter()
	}

	a.usageWorker, err = newUsageWorker(cfg, a.redis, store)
	if err != nil {
		a.close()
		return nil, err
	}
	a.usageWorker.Start(ctx)

	var s3Client *s3.Client
	if cfg.Images.S3Region != "" {
		s3Client, err = enrichment.NewS3Client(ctx, cfg.Images.S3Region, cfg.Images.S3Endpoint)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	}
	loaderCfg := enrichment.LoaderConfig{
		Root:        cfg.Images.Root,
		MaxBytes:    cfg.Images.MaxBytes,
		Concurrency: cfg.Images.Concurrency,

		AllowPrivateHosts: cfg.Images.AllowPrivateHosts,
	}
	if s3Client != nil {
		loaderCfg.S3 = s3Client
	}

	enricher, err := enrichment.NewRouter(enrichment.Config{
		Catalog:     registry,
		Quota:       tracker,
		Credentials: v,
		Images:      enrichment.NewImageLoader(loaderCfg),
		Limiter:     limiter,
		Usage:       a.usageWorker,
		CallTimeout: cfg.Provider.RequestTimeout,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	marketplace, err := listing.LoadMarketplaceConfig(cfg.Marketplace.ConfigPath)
	if err != nil {
		// Built-in defaults still produce valid payloads
		a.logger.Warn("Using default marketplace configuration", "path", cfg.Marketplace.ConfigPath, "error", err)
	}
	if cfg.Marketplace.ImageBaseURL != "" {
		marketplace.Defaults.ImageBaseURL = cfg.Marketplace.ImageBaseURL
	}
	if cfg.Marketplace.AuctionDurationDays > 0 {
		marketplace.Defaults.AuctionDurationDays = cfg.Marketplace.AuctionDurationDays
	}
	if cfg.Marketplace.MaxImages > 0 {
		marketplace.Defaults.MaxImages = cfg.Marketplace.MaxImages
	}
	assembler := listing.NewAssembler(marketplace)

	health := []httpapi.HealthChecker{{Name: "store", Check: store.Ping}}
	if a.redis != nil {
		health = append(health, httpapi.HealthChecker{Name: "redis", Check: a.redis.Health})
	}

	a.handler, err = httpapi.NewRouter(cfg, httpapi.Dependencies{
		Catalog:     registry,
		Credentials: v,
		Usage:       tracker,
		Enricher:    enricher,
		Assembler:   assembler,
		Listings:    listing.NewBuilder(enricher, assembler, store),
		Health:      health,
		Events: func(ctx context.Context, userID string) ([]models.UsageEvent, error) {
			return storage.ListUsageEvents(ctx, store, userID)
		},
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.logger.Info("Enricher initialized",
		"store", cfg.Store.Backend,
		"quota", cfg.Quota.Backend,
		"rate_limit", cfg.RateLimit.Backend,
		"usage_queue", cfg.Usage.Backend,
		"vault_key", v.Fingerprint(),
	)
	return a, nil
}

func newUsageWorker(cfg *config.Config, redisClient *storage.RedisClient, store storage.RecordStore) (*storage.UsageQueueWorker, error) {
	qcfg := cfg.QueueConfig()

	if cfg.Usage.Backend == config.BackendRedis {
		q, err := queue.NewRedisQueue[models.UsageEvent](redisClient.Client(), qcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage queue: %w", err)
		}
		dlq, err := queue.NewRedisDeadLetterQueue[models.UsageEvent](redisClient.Client(), qcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage DLQ: %w", err)
		}
		return storage.NewUsageQueueWorker(q, dlq, store, qcfg), nil
	}

	return storage.NewUsageQueueWorker(
		queue.NewMemoryQueue[models.UsageEvent](qcfg),
		queue.NewMemoryDeadLetterQueue[models.UsageEvent](),
		store,
		qcfg,
	), nil
}

// close releases everything in reverse order of creation
func (a *app) close() {
	if a.usageWorker != nil {
		if err := a.usageWorker.Stop(); err != nil {
			a.logger.Error("Failed to stop usage worker", "error", err)
		}
	}
	if a.redis != nil {
		a.logger.Debug("Redis pool statistics", "stats", fmt.Sprintf("%+v", a.redis.GetStats()))
		if err := a.redis.Close(); err != nil {
			a.logger.Error("Failed to close Redis", "error", err)
		}
	}
	if a.store != nil {
		if sqlStore, ok := a.store.(*storage.SQLStore); ok {
			a.logger.Debug("Store statistics",
				"cache", fmt.Sprintf("%+v", sqlStore.CacheStats()),
				"pool", fmt.Sprintf("%+v", sqlStore.PoolStats()),
			)
		}
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close store", "error", err)
		}
	}
}
