// Package config содержит загрузку и валидацию конфигурации.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"musiccharts/internal/domain/feed"
	"musiccharts/internal/infrastructure/imagecache"
	"musiccharts/internal/storage"
)

// Config представляет конфигурацию приложения
type Config struct {
	// HTTP API
	Server ServerConfig

	// Logging
	LogLevel string
	LogPath  string

	// App Data Directory
	AppDataDir string

	// HTTP Client
	HTTPClientConfig HTTPClientConfig

	// Retry
	RetryConfig RetryConfig

	Feed       FeedConfig
	ImageCache ImageCacheConfig
	Storage    StorageConfig
	WarmUp     WarmUpConfig
	Workers    WorkerConfig
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// HTTPClientConfig представляет конфигурацию HTTP клиента
type HTTPClientConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	DisableKeepAlives     bool
	Timeout               time.Duration
}

// RetryConfig представляет конфигурацию retry механизма
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// FeedConfig — источники чартов
type FeedConfig struct {
	DirectBaseURL string
	LegacyBaseURL string
	// Proxy is a preset name or an absolute proxy base URL
	Proxy        string
	ProxyBaseURL string
	ProxyAPIKey  string
	Timeout      time.Duration
	UserAgent    string

	StateTTL        time.Duration
	RefreshInterval time.Duration
}

// ImageCacheConfig — кэш обложек
type ImageCacheConfig struct {
	StorageKey    string
	FetchTimeout  time.Duration
	PersistDelay  time.Duration
	BatchSize     int
	MaxImageBytes int64
	AllowedHosts  []string
}

// StorageConfig — хранилище сохраняемого уровня кэша
type StorageConfig struct {
	Backend     string
	Dir         string
	QuotaBytes  int64
	RedisURL    string
	RedisPrefix string
	DatabaseURL string
}

// WarmUpConfig — периодический прогрев чартов
type WarmUpConfig struct {
	Enabled     bool
	Schedule    string
	Countries   []string
	FeedTypes   []string
	Limit       int
	Concurrency int
	RunOnStart  bool
	Timeout     time.Duration
}

// WorkerConfig — фоновые задачи
type WorkerConfig struct {
	Count     int
	QueueSize int
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	dataDir := getEnv("APP_DATA_DIR", "./data")

	config := &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 45*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPath:    getEnv("LOG_PATH", filepath.Join(dataDir, "app.log")),
		AppDataDir: dataDir,
		HTTPClientConfig: HTTPClientConfig{
			MaxIdleConns:          getEnvInt("HTTP_MAX_IDLE_CONNS", 100),
			MaxIdleConnsPerHost:   getEnvInt("HTTP_MAX_IDLE_CONNS_PER_HOST", 10),
			IdleConnTimeout:       getEnvDuration("HTTP_IDLE_CONN_TIMEOUT", 90*time.Second),
			TLSHandshakeTimeout:   getEnvDuration("HTTP_TLS_HANDSHAKE_TIMEOUT", 10*time.Second),
			ResponseHeaderTimeout: getEnvDuration("HTTP_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
			DisableKeepAlives:     getEnvBool("HTTP_DISABLE_KEEP_ALIVES", false),
			Timeout:               getEnvDuration("HTTP_CLIENT_TIMEOUT", 30*time.Second),
		},
		RetryConfig: RetryConfig{
			MaxRetries:        getEnvInt("RETRY_MAX_RETRIES", 3),
			InitialDelay:      getEnvDuration("RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
		},
		Feed: FeedConfig{
			DirectBaseURL:   getEnv("FEED_DIRECT_URL", "https://rss.applemarketingtools.com/api/v2"),
			LegacyBaseURL:   getEnv("FEED_LEGACY_URL", "https://itunes.apple.com"),
			Proxy:           getEnv("CORS_PROXY", feed.DefaultProxy),
			ProxyAPIKey:     getEnv("CORS_PROXY_API_KEY", ""),
			Timeout:         getEnvDuration("FEED_TIMEOUT", 10*time.Second),
			UserAgent:       getEnv("FEED_USER_AGENT", "musiccharts/1.0"),
			StateTTL:        getEnvDuration("FEED_STATE_TTL", 15*time.Minute),
			RefreshInterval: getEnvDuration("FEED_REFRESH_INTERVAL", 10*time.Second),
		},
		ImageCache: ImageCacheConfig{
			StorageKey:    getEnv("IMAGE_CACHE_KEY", "imageCache"),
			FetchTimeout:  getEnvDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second),
			PersistDelay:  getEnvDuration("IMAGE_PERSIST_DELAY", time.Second),
			BatchSize:     getEnvInt("IMAGE_PRELOAD_BATCH", 3),
			MaxImageBytes: getEnvInt64("IMAGE_MAX_BYTES", 5<<20),
			AllowedHosts:  getEnvList("IMAGE_ALLOWED_HOSTS", imagecache.DefaultAllowedHosts),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(getEnv("STORAGE_BACKEND", storage.BackendFile)),
			Dir:         getEnv("STORAGE_DIR", filepath.Join(dataDir, "storage")),
			QuotaBytes:  getEnvInt64("STORAGE_QUOTA_BYTES", 5<<20),
			RedisURL:    getEnv("REDIS_URL", ""),
			RedisPrefix: getEnv("REDIS_PREFIX", storage.DefaultRedisPrefix),
			DatabaseURL: getEnv("DB_DSN", ""),
		},
		WarmUp: WarmUpConfig{
			Enabled:     getEnvBool("WARMUP_ENABLED", true),
			Schedule:    getEnv("WARMUP_SCHEDULE", "@every 30m"),
			Countries:   getEnvList("WARMUP_COUNTRIES", []string{feed.DefaultCountry}),
			FeedTypes:   getEnvList("WARMUP_FEED_TYPES", []string{string(feed.TypeSongs), string(feed.TypeAlbums)}),
			Limit:       getEnvInt("WARMUP_LIMIT", feed.DefaultLimit),
			Concurrency: getEnvInt("WARMUP_CONCURRENCY", 2),
			RunOnStart:  getEnvBool("WARMUP_ON_START", true),
			Timeout:     getEnvDuration("WARMUP_TIMEOUT", 5*time.Minute),
		},
		Workers: WorkerConfig{
			Count:     getEnvInt("WORKER_COUNT", 2),
			QueueSize: getEnvInt("WORKER_QUEUE_SIZE", 64),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет конфигурацию и разрешает пресет прокси
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	proxyBase, err := feed.ResolveProxy(c.Feed.Proxy)
	if err != nil {
		return fmt.Errorf("CORS_PROXY: %w", err)
	}
	c.Feed.ProxyBaseURL = proxyBase

	if c.Feed.Timeout <= 0 {
		return fmt.Errorf("FEED_TIMEOUT must be positive")
	}

	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendFile:
	case storage.BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case storage.BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DB_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("STORAGE_QUOTA_BYTES must not be negative")
	}

	if c.ImageCache.BatchSize <= 0 {
		return fmt.Errorf("IMAGE_PRELOAD_BATCH must be positive")
	}
	if len(c.ImageCache.AllowedHosts) == 0 {
		return fmt.Errorf("IMAGE_ALLOWED_HOSTS must not be empty")
	}

	if c.RetryConfig.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	if c.RetryConfig.BackoffMultiplier < 1 {
		return fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1")
	}

	if c.Workers.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must not be negative")
	}

	if c.WarmUp.Enabled {
		if _, err := cron.ParseStandard(c.WarmUp.Schedule); err != nil {
			return fmt.Errorf("WARMUP_SCHEDULE %q: %w", c.WarmUp.Schedule, err)
		}
		if c.WarmUp.Limit <= 0 || c.WarmUp.Limit > feed.MaxLimit {
			return fmt.Errorf("WARMUP_LIMIT must be between 1 and %d", feed.MaxLimit)
		}
	}

	return nil
}

// GetAppDataDir возвращает директорию данных приложения
func (c *Config) GetAppDataDir() string {
	return c.AppDataDir
}
