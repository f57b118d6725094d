package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"listing_enricher/internal/providers"
	"listing_enricher/internal/queue"
	"listing_enricher/internal/storage"
	"listing_enricher/internal/vault"
)

// Backend names accepted by the quota, rate limit and usage queue settings
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendStore  = "store"
	BackendNone   = "none"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds configuration for the enricher service.
type Config struct {
	HTTPPort    string
	JWT         JWTConfig
	Store       StoreConfig
	Redis       RedisConfig
	Vault       VaultConfig
	Provider    ProviderConfig
	Quota       QuotaConfig
	RateLimit   RateLimitConfig
	Images      ImagesConfig
	Marketplace MarketplaceConfig
	Usage       UsageConfig
}

// JWTConfig holds user token settings
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
}

// StoreConfig selects and tunes the record store
type StoreConfig struct {
	Backend         string // memory, sqlite or postgres
	SQLitePath      string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	CacheSize       int
	CacheTTL        time.Duration
	UncachedTables  []string
}

// RedisConfig holds Redis connection settings. An empty address disables
// every Redis-backed component.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// VaultConfig locates the credential encryption key
type VaultConfig struct {
	KeyFile string
}

// ProviderConfig holds AI backend settings
type ProviderConfig struct {
	RequestTimeout time.Duration
	Overrides      map[string]providers.Override

	// LocalAllowedHosts lists the hosts a user's local endpoint may point
	// at, besides the configured local endpoint itself
	LocalAllowedHosts []string
}

// QuotaConfig selects where daily counters live
type QuotaConfig struct {
	Backend  string // redis or store
	TimeZone *time.Location
}

// RateLimitConfig selects the per-minute limiter
type RateLimitConfig struct {
	Backend string // redis, memory or none
}

// ImagesConfig controls image loading
type ImagesConfig struct {
	Root        string
	MaxBytes    int64
	Concurrency int
	S3Region    string
	S3Endpoint  string

	// AllowPrivateHosts lets inline downloads reach loopback and private
	// addresses
	AllowPrivateHosts bool
}

// MarketplaceConfig controls listing assembly
type MarketplaceConfig struct {
	ConfigPath          string
	ImageBaseURL        string
	AuctionDurationDays int
	MaxImages           int
}

// UsageConfig controls the usage event queue
type UsageConfig struct {
	Backend      string // redis or memory
	QueueName    string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// providerOverrides reads PROVIDER_<ID>_ENDPOINT, _MODEL, _MAX_TOKENS,
// _RATE_LIMIT and _DAILY_LIMIT for every provider
func providerOverrides() map[string]providers.Override {
	overrides := make(map[string]providers.Override)
	for _, id := range []string{providers.OpenAI, providers.Anthropic, providers.Google, providers.Local, providers.Custom} {
		prefix := "PROVIDER_" + strings.ToUpper(id) + "_"
		o := providers.Override{
			EndpointBase:       getEnvString(prefix+"ENDPOINT", ""),
			ModelID:            getEnvString(prefix+"MODEL", ""),
			MaxTokens:          getEnvInt(prefix+"MAX_TOKENS", 0),
			RateLimitPerMinute: getEnvInt(prefix+"RATE_LIMIT", 0),
			DailyLimit:         getEnvInt(prefix+"DAILY_LIMIT", 0),
		}
		if o != (providers.Override{}) {
			overrides[id] = o
		}
	}
	return overrides
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	tzName := getEnvString("QUOTA_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", tzName, err)
	}

	redisAddr := getEnvString("REDIS_ADDRESS", "")
	defaultCounterBackend := BackendStore
	defaultLimiterBackend := BackendMemory
	defaultUsageBackend := BackendMemory
	if redisAddr != "" {
		defaultCounterBackend = BackendRedis
		defaultLimiterBackend = BackendRedis
		defaultUsageBackend = BackendRedis
	}

	dbDefaults := storage.DefaultDBConfig()
	queueDefaults := queue.DefaultConfig("usage_events")

	cfg := &Config{
		HTTPPort: getEnvString("HTTP_PORT", "8080"),
		JWT: JWTConfig{
			Secret:   []byte(getEnvString("JWT_SECRET", "")),
			Issuer:   getEnvString("JWT_ISSUER", "listing-enricher"),
			TokenTTL: getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Store: StoreConfig{
			Backend:         getEnvString("STORE_BACKEND", storage.BackendSQLite),
			SQLitePath:      getEnvString("SQLITE_PATH", dbDefaults.DSN),
			DatabaseURL:     getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", dbDefaults.MaxOpenConns),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", dbDefaults.MaxIdleConns),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", dbDefaults.ConnMaxLifetime),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", dbDefaults.ConnMaxIdleTime),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", dbDefaults.QueryTimeout),
			CacheSize:       getEnvInt("STORE_CACHE_SIZE", dbDefaults.CacheSize),
			CacheTTL:        getEnvDuration("STORE_CACHE_TTL", dbDefaults.CacheTTL),
			UncachedTables:  uncachedTables(),
		},
		Redis: RedisConfig{
			Address:      redisAddr,
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Vault: VaultConfig{
			KeyFile: getEnvString("VAULT_KEY_FILE", "data/vault.key"),
		},
		Provider: ProviderConfig{
			RequestTimeout:    getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 45*time.Second),
			Overrides:         providerOverrides(),
			LocalAllowedHosts: getEnvList("PROVIDER_LOCAL_ALLOWED_HOSTS"),
		},
		Quota: QuotaConfig{
			Backend:  getEnvString("QUOTA_BACKEND", defaultCounterBackend),
			TimeZone: loc,
		},
		RateLimit: RateLimitConfig{
			Backend: getEnvString("RATE_LIMIT_BACKEND", defaultLimiterBackend),
		},
		Images: ImagesConfig{
			Root:              getEnvString("IMAGE_ROOT", "images"),
			MaxBytes:          getEnvInt64("IMAGE_MAX_BYTES", 20<<20),
			Concurrency:       getEnvInt("IMAGE_CONCURRENCY", 4),
			S3Region:          getEnvString("IMAGE_S3_REGION", ""),
			S3Endpoint:        getEnvString("IMAGE_S3_ENDPOINT", ""),
			AllowPrivateHosts: getEnvBool("IMAGE_ALLOW_PRIVATE_HOSTS", false),
		},
		Marketplace: MarketplaceConfig{
			ConfigPath:          getEnvString("MARKETPLACE_CONFIG", "marketplace.yaml"),
			ImageBaseURL:        getEnvString("IMAGE_BASE_URL", ""),
			AuctionDurationDays: getEnvInt("AUCTION_DURATION_DAYS", 0),
			MaxImages:           getEnvInt("MAX_IMAGES", 0),
		},
		Usage: UsageConfig{
			Backend:      getEnvString("USAGE_QUEUE_BACKEND", defaultUsageBackend),
			QueueName:    getEnvString("USAGE_QUEUE_NAME", queueDefaults.QueueName),
			BatchSize:    getEnvInt("USAGE_BATCH_SIZE", queueDefaults.BatchSize),
			BatchTimeout: getEnvDuration("USAGE_BATCH_TIMEOUT", queueDefaults.BatchTimeout),
			MaxRetries:   getEnvInt("USAGE_MAX_RETRIES", queueDefaults.MaxRetries),
			RetryBackoff: getEnvDuration("USAGE_RETRY_BACKOFF", queueDefaults.RetryBackoff),
		},
	}

	if len(cfg.JWT.Secret) == 0 {
		if !getEnvBool("ALLOW_INSECURE_JWT_SECRET", false) {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWT.Secret = []byte(insecureJWTSecret)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations of settings that cannot work together
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case storage.BackendMemory, storage.BackendSQLite:
	case storage.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	needsRedis := func(setting, backend string, allowed ...string) error {
		for _, a := range allowed {
			if backend == a {
				if backend == BackendRedis && c.Redis.Address == "" {
					return fmt.Errorf("REDIS_ADDRESS is required when %s=redis", setting)
				}
				return nil
			}
		}
		return fmt.Errorf("unknown %s %q", setting, backend)
	}

	if err := needsRedis("QUOTA_BACKEND", c.Quota.Backend, BackendRedis, BackendStore); err != nil {
		return err
	}
	if err := needsRedis("RATE_LIMIT_BACKEND", c.RateLimit.Backend, BackendRedis, BackendMemory, BackendNone); err != nil {
		return err
	}
	if err := needsRedis("USAGE_QUEUE_BACKEND", c.Usage.Backend, BackendRedis, BackendMemory); err != nil {
		return err
	}

	if c.Images.MaxBytes <= 0 {
		return fmt.Errorf("IMAGE_MAX_BYTES must be positive")
	}
	return nil
}

// DBConfig converts the store settings for storage.Open
func (c *Config) DBConfig() storage.DBConfig {
	dsn := c.Store.SQLitePath
	if c.Store.Backend == storage.BackendPostgres {
		dsn = c.Store.DatabaseURL
	}
	return storage.DBConfig{
		Driver:          c.Store.Backend,
		DSN:             dsn,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
		ConnMaxIdleTime: c.Store.ConnMaxIdleTime,
		QueryTimeout:    c.Store.QueryTimeout,
		CacheSize:       c.Store.CacheSize,
		CacheTTL:        c.Store.CacheTTL,
		UncachedTables:  c.Store.UncachedTables,
	}
}

// uncachedTables reads STORE_UNCACHED_TABLES. Credentials are never cached
// by default so that a deletion on one instance takes effect everywhere.
func uncachedTables() []string {
	if tables := getEnvList("STORE_UNCACHED_TABLES"); len(tables) > 0 {
		return tables
	}
	return []string{vault.CredentialsTable}
}

// RedisClientConfig converts the Redis settings for storage.NewRedisClient
func (c *Config) RedisClientConfig() storage.RedisConfig {
	rc := storage.DefaultRedisConfig()
	rc.Address = c.Redis.Address
	rc.Password = c.Redis.Password
	rc.DB = c.Redis.DB
	rc.PoolSize = c.Redis.PoolSize
	rc.MinIdleConns = c.Redis.MinIdleConns
	rc.DialTimeout = c.Redis.DialTimeout
	rc.ReadTimeout = c.Redis.ReadTimeout
	rc.WriteTimeout = c.Redis.WriteTimeout
	return rc
}

// QueueConfig converts the usage queue settings
func (c *Config) QueueConfig() *queue.Config {
	return &queue.Config{
		BatchSize:    c.Usage.BatchSize,
		BatchTimeout: c.Usage.BatchTimeout,
		MaxRetries:   c.Usage.MaxRetries,
		RetryBackoff: c.Usage.RetryBackoff,
		QueueName:    c.Usage.QueueName,
	}
}
