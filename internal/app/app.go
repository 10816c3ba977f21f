package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"musiccharts/internal/config"
	"musiccharts/internal/infrastructure/imagecache"
	"musiccharts/internal/infrastructure/metrics"
	"musiccharts/internal/infrastructure/worker"
	"musiccharts/internal/service"
	"musiccharts/internal/storage"
	"musiccharts/internal/transport/httpapi"
)

// App представляет основную логику приложения
type App struct {
	config    *config.Config
	logger    *zap.Logger
	store     storage.Store
	metrics   *metrics.Metrics
	pool      *worker.Pool
	images    *imagecache.Cache
	charts    *service.ChartService
	scheduler *service.Scheduler
	server    *httpapi.Server

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New создает приложение через фабрику
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return NewComponentFactory(cfg, logger).CreateApp(ctx)
}

// Start запускает приложение и блокирует до отмены ctx или падения HTTP сервера
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting application")

	a.pool.Start()

	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			a.Stop()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	serverErr := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Очистка rate limiter каждые 5 минут
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.server.CleanupRateLimits()
			case <-a.done:
				return
			}
		}
	}()

	a.logger.Info("Application started", zap.String("addr", a.config.Server.Addr))

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Application cancelled by context")
	case err := <-serverErr:
		a.logger.Error("HTTP server failed", zap.Error(err))
		runErr = err
	}

	a.Stop()
	return runErr
}

// Stop gracefully останавливает приложение; повторные вызовы ничего не делают
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("Stopping application gracefully")

		timeout := a.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		close(a.done)
		if err := a.server.Stop(shutdownCtx); err != nil {
			a.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}
		a.wg.Wait()

		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		a.pool.Stop()

		// несохраненный снимок кэша пишется до закрытия хранилища
		if err := a.images.Flush(shutdownCtx); err != nil {
			a.logger.Error("Failed to flush image cache", zap.Error(err))
		}
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close storage", zap.Error(err))
		}

		a.logger.Info("Application stopped", zap.Any("stats", a.metrics.GetStats()))
	})
}

// Charts returns the chart service
func (a *App) Charts() *service.ChartService {
	return a.charts
}

// Images returns the image cache
func (a *App) Images() *imagecache.Cache {
	return a.images
}
