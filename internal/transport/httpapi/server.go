// Package httpapi отдает чарты и кэш изображений по HTTP на chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"musiccharts/internal/domain/feed"
	"musiccharts/internal/infrastructure/imagecache"
	"musiccharts/internal/infrastructure/worker"
	"musiccharts/internal/service"
)

// Charts is implemented by service.ChartService
type Charts interface {
	Load(ctx context.Context, req feed.Request) service.State
	Refresh(ctx context.Context, req feed.Request) (service.State, error)
	Online() bool
}

// Images is implemented by imagecache.Cache
type Images interface {
	GetCachedImage(ctx context.Context, url string) string
	PreloadImages(ctx context.Context, urls []string) int
	ClearCache(ctx context.Context) error
	RemoveFromCache(url string) bool
	CacheSize(ctx context.Context) float64
	Stats() imagecache.Stats
}

// Jobs is implemented by worker.Pool
type Jobs interface {
	Submit(job worker.Job) error
	GetMetrics() worker.Metrics
}

// Stats is implemented by metrics.Metrics
type Stats interface {
	RecordResponseTime(duration time.Duration)
	RecordError()
	GetStats() map[string]interface{}
}

// Pinger is implemented by every storage backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config настройки HTTP сервера
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	Version        string

	// лимит изменяющих запросов на клиента; 0 отключает
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Deps — зависимости обработчиков
type Deps struct {
	Charts  Charts
	Images  Images
	Jobs    Jobs
	Metrics Stats
	Store   Pinger
}

// Server — HTTP API сервиса
type Server struct {
	cfg       Config
	deps      Deps
	logger    *zap.Logger
	server    *http.Server
	limiter   *RateLimiter
	startTime time.Time
}

// NewServer создает сервер с зарегистрированными маршрутами
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		limiter:   NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger),
		startTime: time.Now(),
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Router builds the chi router with all routes and middleware
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger, s.deps.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/meta", s.handleMeta)
		r.Get("/stats", s.handleStats)

		r.Get("/feeds/{type}", s.handleFeed)
		r.Get("/images", s.handleImage)
		r.Get("/images/size", s.handleImageSize)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)

			r.Post("/feeds/{type}/refresh", s.handleRefresh)
			r.Post("/images/preload", s.handlePreload)
			r.Delete("/images", s.handleClearImages)
			r.Delete("/images/entry", s.handleRemoveImage)
		})
	})

	return r
}

// Start запускает HTTP сервер; блокирует до остановки
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.cfg.Addr))
	return s.server.ListenAndServe()
}

// CleanupRateLimits drops rate limiter entries outside the window
func (s *Server) CleanupRateLimits() {
	s.limiter.Cleanup()
}

// Stop останавливает HTTP сервер
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
