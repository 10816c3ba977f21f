// Package app содержит фабрику компонентов и жизненный цикл приложения.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"musiccharts/internal/config"
	"musiccharts/internal/gateway/applerss"
	"musiccharts/internal/gateway/httpclient"
	"musiccharts/internal/infrastructure/imagecache"
	"musiccharts/internal/infrastructure/metrics"
	"musiccharts/internal/infrastructure/retry"
	"musiccharts/internal/infrastructure/worker"
	"musiccharts/internal/service"
	"musiccharts/internal/storage"
	"musiccharts/internal/transport/httpapi"
)

// Version is reported by the health endpoints
var Version = "1.0.0"

// ComponentFactory создает компоненты приложения
type ComponentFactory struct {
	config *config.Config
	logger *zap.Logger
}

// NewComponentFactory создает новую фабрику компонентов
func NewComponentFactory(config *config.Config, logger *zap.Logger) *ComponentFactory {
	if logger == nil {
		panic("Logger cannot be nil")
	}
	if config == nil {
		logger.Fatal("Config cannot be nil")
	}

	return &ComponentFactory{
		config: config,
		logger: logger,
	}
}

// CreateAppDataDirectory создает директорию данных приложения
func (f *ComponentFactory) CreateAppDataDirectory() error {
	dataDir := f.config.GetAppDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		f.logger.Error("Failed to create app data directory", zap.String("dir", dataDir), zap.Error(err))
		return fmt.Errorf("failed to create app data directory: %w", err)
	}
	f.logger.Info("App data directory ready", zap.String("dir", dataDir))
	return nil
}

func (f *ComponentFactory) retryConfig() retry.Config {
	return retry.Config{
		MaxRetries:        f.config.RetryConfig.MaxRetries,
		InitialDelay:      f.config.RetryConfig.InitialDelay,
		MaxDelay:          f.config.RetryConfig.MaxDelay,
		BackoffMultiplier: f.config.RetryConfig.BackoffMultiplier,
	}
}

// CreateStore открывает хранилище сохраняемого уровня кэша
func (f *ComponentFactory) CreateStore(ctx context.Context) (storage.Store, error) {
	sc := f.config.Storage
	store, err := storage.Open(ctx, storage.Config{
		Backend:     sc.Backend,
		Dir:         sc.Dir,
		QuotaBytes:  sc.QuotaBytes,
		RedisURL:    sc.RedisURL,
		RedisPrefix: sc.RedisPrefix,
		DatabaseURL: sc.DatabaseURL,
		Connect:     f.retryConfig(),
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// CreateHTTPClient создает общий HTTP клиент для фидов и обложек
func (f *ComponentFactory) CreateHTTPClient() *http.Client {
	hc := f.config.HTTPClientConfig
	return httpclient.New(httpclient.Config{
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		DisableKeepAlives:     hc.DisableKeepAlives,
		Timeout:               hc.Timeout,
	}, f.logger)
}

// CreateWorkerPool создает пул фоновых задач
func (f *ComponentFactory) CreateWorkerPool() *worker.Pool {
	return worker.NewWorkerPool(f.config.Workers.Count, f.config.Workers.QueueSize, f.logger)
}

// CreateFeedClient создает оркестратор получения чартов
func (f *ComponentFactory) CreateFeedClient(doer applerss.HTTPDoer, m *metrics.Metrics) *applerss.Client {
	fc := f.config.Feed
	return applerss.NewClient(applerss.Config{
		DirectBaseURL: fc.DirectBaseURL,
		ProxyBaseURL:  fc.ProxyBaseURL,
		ProxyAPIKey:   fc.ProxyAPIKey,
		LegacyBaseURL: fc.LegacyBaseURL,
		Timeout:       fc.Timeout,
		UserAgent:     fc.UserAgent,
	}, doer, f.logger.Named("applerss"), applerss.WithMetrics(m))
}

// CreateImageCache создает кэш обложек поверх хранилища
func (f *ComponentFactory) CreateImageCache(store storage.Store, doer imagecache.HTTPDoer, m *metrics.Metrics) *imagecache.Cache {
	ic := f.config.ImageCache
	cfg := imagecache.DefaultConfig()
	cfg.StorageKey = ic.StorageKey
	cfg.FetchTimeout = ic.FetchTimeout
	cfg.PersistDelay = ic.PersistDelay
	cfg.BatchSize = ic.BatchSize
	cfg.MaxImageBytes = ic.MaxImageBytes
	cfg.AllowedHosts = ic.AllowedHosts
	return imagecache.New(cfg, store, doer, f.logger.Named("imagecache"), imagecache.WithMetrics(m))
}

// CreateChartService создает сервис чартов
func (f *ComponentFactory) CreateChartService(fetcher service.FeedFetcher, images service.ImagePreloader, jobs service.JobSubmitter) *service.ChartService {
	return service.NewChartService(service.ChartsConfig{
		StateTTL:        f.config.Feed.StateTTL,
		RefreshInterval: f.config.Feed.RefreshInterval,
	}, fetcher, images, jobs, f.logger.Named("charts"))
}

// CreateScheduler создает планировщик прогрева; nil, если прогрев выключен
func (f *ComponentFactory) CreateScheduler(charts service.Reloader, m *metrics.Metrics) (*service.Scheduler, error) {
	wc := f.config.WarmUp
	if !wc.Enabled {
		f.logger.Info("Warm-up scheduler is disabled")
		return nil, nil
	}

	scheduler, err := service.NewScheduler(service.WarmUpConfig{
		Schedule:    wc.Schedule,
		Countries:   wc.Countries,
		FeedTypes:   wc.FeedTypes,
		Limit:       wc.Limit,
		Concurrency: wc.Concurrency,
		RunOnStart:  wc.RunOnStart,
		Timeout:     wc.Timeout,
	}, charts, m, f.logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return scheduler, nil
}

// CreateServer создает HTTP API
func (f *ComponentFactory) CreateServer(deps httpapi.Deps) *httpapi.Server {
	sc := f.config.Server
	return httpapi.NewServer(httpapi.Config{
		Addr:           sc.Addr,
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		RequestTimeout: sc.RequestTimeout,
		Version:        Version,

		RateLimitRequests: sc.RateLimitRequests,
		RateLimitWindow:   sc.RateLimitWindow,
	}, deps, f.logger.Named("http"))
}

// CreateApp создает приложение со всеми зависимостями
func (f *ComponentFactory) CreateApp(ctx context.Context) (*App, error) {
	if err := f.CreateAppDataDirectory(); err != nil {
		return nil, err
	}

	store, err := f.CreateStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics(f.logger)
	httpClient := f.CreateHTTPClient()
	pool := f.CreateWorkerPool()
	feeds := f.CreateFeedClient(httpClient, m)
	images := f.CreateImageCache(store, httpClient, m)
	if err := images.Load(ctx); err != nil {
		f.logger.Warn("Image cache not loaded, starting empty", zap.Error(err))
	}
	charts := f.CreateChartService(feeds, images, pool)

	scheduler, err := f.CreateScheduler(charts, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	server := f.CreateServer(httpapi.Deps{
		Charts:  charts,
		Images:  images,
		Jobs:    pool,
		Metrics: m,
		Store:   store,
	})

	f.logger.Info("Application created with all dependencies",
		zap.String("storage", f.config.Storage.Backend),
		zap.Bool("warm_up", scheduler != nil))

	return &App{
		config:    f.config,
		logger:    f.logger,
		store:     store,
		metrics:   m,
		pool:      pool,
		images:    images,
		charts:    charts,
		scheduler: scheduler,
		server:    server,
		done:      make(chan struct{}),
	}, nil
}
