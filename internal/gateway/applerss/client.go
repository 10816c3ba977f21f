// Package applerss получает чарты Apple Music цепочкой стратегий:
// прямой запрос, CORS-прокси, старый iTunes RSS и, в последнюю очередь, запасной фид.
package applerss

import (
	"context"
	"time"

	"go.uber.org/zap"

	"musiccharts/internal/domain/feed"
)

// Default endpoints
const (
	DefaultDirectBaseURL = "https://rss.applemarketingtools.com/api/v2"
	DefaultLegacyBaseURL = "https://itunes.apple.com"
	DefaultTimeout       = 10 * time.Second
)

// Config holds endpoint settings for the strategies
type Config struct {
	DirectBaseURL string
	ProxyBaseURL  string
	ProxyAPIKey   string
	LegacyBaseURL string
	Timeout       time.Duration
	UserAgent     string
}

// Recorder receives per-strategy outcomes
type Recorder interface {
	RecordStrategyResult(strategy string, ok bool, duration time.Duration)
	RecordFallback()
}

// Client — оркестратор получения фида. Состояния между вызовами не хранит.
type Client struct {
	strategies []Strategy
	logger     *zap.Logger
	metrics    Recorder
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithMetrics sets the metrics recorder
func WithMetrics(m Recorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithStrategies replaces the default strategy chain
func WithStrategies(strategies ...Strategy) Option {
	return func(c *Client) {
		c.strategies = strategies
	}
}

// NewClient создает клиент со стандартной цепочкой direct → proxy → legacy
func NewClient(cfg Config, doer HTTPDoer, logger *zap.Logger, opts ...Option) *Client {
	if cfg.DirectBaseURL == "" {
		cfg.DirectBaseURL = DefaultDirectBaseURL
	}
	if cfg.LegacyBaseURL == "" {
		cfg.LegacyBaseURL = DefaultLegacyBaseURL
	}
	if cfg.ProxyBaseURL == "" {
		base, _ := feed.ResolveProxy(feed.DefaultProxy)
		cfg.ProxyBaseURL = base
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	f := &fetcher{doer: doer, timeout: cfg.Timeout, userAgent: cfg.UserAgent}
	c := &Client{
		strategies: []Strategy{
			newDirectStrategy(cfg, f),
			newProxyStrategy(cfg, f),
			newLegacyStrategy(cfg, f),
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFeed never fails: the first strategy that yields a valid feed wins,
// otherwise a degraded single-item feed is returned. Once ctx is done the
// remaining strategies are skipped and nothing is recorded.
func (c *Client) FetchFeed(ctx context.Context, req feed.Request) *feed.NormalizedFeed {
	for _, strategy := range c.strategies {
		if ctx.Err() != nil {
			return c.cancelled(ctx, req)
		}

		start := time.Now()
		result, err := strategy.Fetch(ctx, req)
		duration := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(ctx, req)
			}
			c.logger.Warn("Feed strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.String("feed", req.Key()),
				zap.Duration("duration", duration),
				zap.Error(err))
			if c.metrics != nil {
				c.metrics.RecordStrategyResult(strategy.Name(), false, duration)
			}
			continue
		}

		if c.metrics != nil {
			c.metrics.RecordStrategyResult(strategy.Name(), true, duration)
		}
		c.finish(result, strategy.Name(), req)

		c.logger.Info("Feed fetched",
			zap.String("strategy", strategy.Name()),
			zap.String("feed", req.Key()),
			zap.Int("items", len(result.Results)),
			zap.Duration("duration", duration))
		return result
	}

	c.logger.Error("All feed strategies failed, serving fallback data",
		zap.String("feed", req.Key()))
	if c.metrics != nil {
		c.metrics.RecordFallback()
	}
	return Fallback(req, c.now())
}

func (c *Client) cancelled(ctx context.Context, req feed.Request) *feed.NormalizedFeed {
	c.logger.Debug("Feed fetch cancelled",
		zap.String("feed", req.Key()),
		zap.Error(ctx.Err()))
	return Fallback(req, c.now())
}

func (c *Client) finish(result *feed.NormalizedFeed, source string, req feed.Request) {
	result.Source = source
	if result.Country == "" {
		result.Country = req.Country
	}
	if result.Updated == "" {
		result.Updated = c.now().UTC().Format(time.RFC3339)
	}
	if result.Results == nil {
		result.Results = []feed.Item{}
	}
}
