// Package service содержит сервис чартов и планировщик прогрева.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"musiccharts/internal/domain/feed"
	"musiccharts/internal/infrastructure/debounce"
	"musiccharts/internal/infrastructure/worker"
)

// ErrRefreshTooFrequent is returned when a refresh for the same chart comes too soon
var ErrRefreshTooFrequent = errors.New("refresh requested too frequently")

// DegradedMessage is reported in State.Error when placeholder data is served
const DegradedMessage = "Failed to fetch music data. Showing placeholder content."

// FeedFetcher is implemented by applerss.Client
type FeedFetcher interface {
	FetchFeed(ctx context.Context, req feed.Request) *feed.NormalizedFeed
}

// ImagePreloader is implemented by imagecache.Cache
type ImagePreloader interface {
	PreloadImages(ctx context.Context, urls []string) int
}

// JobSubmitter is implemented by worker.Pool
type JobSubmitter interface {
	Submit(job worker.Job) error
}

// State — состояние чарта для клиента: загрузка, ошибка, данные
type State struct {
	Loading   bool                 `json:"loading"`
	Error     string               `json:"error,omitempty"`
	Feed      *feed.NormalizedFeed `json:"data"`
	UpdatedAt *time.Time           `json:"updatedAt,omitempty"`
}

// ChartsConfig настройки сервиса чартов
type ChartsConfig struct {
	StateTTL        time.Duration
	RefreshInterval time.Duration
}

// ChartService загружает чарты, хранит последнее состояние по каждому запросу
// и ставит предзагрузку обложек в пул воркеров.
type ChartService struct {
	fetcher   FeedFetcher
	images    ImagePreloader
	jobs      JobSubmitter
	debouncer debounce.DebouncerInterface
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	states map[string]State

	// последний ответ был запасным фидом
	offline atomic.Bool
}

// NewChartService создает сервис чартов; images и jobs могут быть nil
func NewChartService(cfg ChartsConfig, fetcher FeedFetcher, images ImagePreloader, jobs JobSubmitter, logger *zap.Logger) *ChartService {
	return &ChartService{
		fetcher:   fetcher,
		images:    images,
		jobs:      jobs,
		debouncer: debounce.NewDebouncer(cfg.RefreshInterval, nil),
		logger:    logger,
		ttl:       cfg.StateTTL,
		now:       time.Now,
		states:    make(map[string]State),
	}
}

// Load returns the chart for req, fetching it when there is no fresh data
func (s *ChartService) Load(ctx context.Context, req feed.Request) State {
	if state, ok := s.fresh(req.Key()); ok {
		return state
	}
	return s.Reload(ctx, req)
}

// Reload fetches req unconditionally
func (s *ChartService) Reload(ctx context.Context, req feed.Request) State {
	key := req.Key()
	s.markLoading(key)

	start := s.now()
	result := s.fetcher.FetchFeed(ctx, req)
	if err := ctx.Err(); err != nil {
		// вызывающий ушел: поздний результат не трогает общее состояние
		s.logger.Debug("Chart load discarded",
			zap.String("feed", key),
			zap.Error(err))
		return s.abandon(key, result)
	}
	state := s.store(key, result)

	s.logger.Info("Chart loaded",
		zap.String("feed", key),
		zap.String("source", result.Source),
		zap.Bool("degraded", result.Degraded),
		zap.Duration("duration", time.Since(start)))

	s.schedulePreload(key, result)
	return state
}

// Refresh forces a reload unless the same chart was refreshed within the refresh interval
func (s *ChartService) Refresh(ctx context.Context, req feed.Request) (State, error) {
	key := "refresh:" + req.Key()
	if !s.debouncer.CanProcessRequest(key) {
		return s.State(req), fmt.Errorf("%w: retry in %s",
			ErrRefreshTooFrequent, s.debouncer.RetryAfter(key).Round(time.Second))
	}
	return s.Reload(ctx, req), nil
}

// State returns the current snapshot for req without fetching.
// A chart that was never requested reports Loading with no data.
func (s *ChartService) State(req feed.Request) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[req.Key()]
	if !ok {
		return State{Loading: true}
	}
	return state
}

// Keys returns the keys of all loaded charts
func (s *ChartService) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	return keys
}

// Online reports whether the most recent load reached a live source
func (s *ChartService) Online() bool {
	return !s.offline.Load()
}

func (s *ChartService) fresh(key string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	if !ok || state.Loading || state.Feed == nil || state.UpdatedAt == nil {
		return State{}, false
	}
	// деградированные данные не кэшируются
	if state.Feed.Degraded || s.ttl <= 0 {
		return State{}, false
	}
	if s.now().Sub(*state.UpdatedAt) >= s.ttl {
		return State{}, false
	}
	return state, true
}

// markLoading keeps the previous data visible while a fetch is running
func (s *ChartService) markLoading(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[key]
	state.Loading = true
	s.states[key] = state
}

// abandon clears the loading mark and keeps whatever data the chart had.
// A chart with no data yet gets result back but nothing is stored.
func (s *ChartService) abandon(key string, result *feed.NormalizedFeed) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	if ok && state.Feed != nil {
		state.Loading = false
		s.states[key] = state
		return state
	}

	delete(s.states, key)
	unsaved := State{Feed: result}
	if result.Degraded {
		unsaved.Error = DegradedMessage
	}
	return unsaved
}

func (s *ChartService) store(key string, result *feed.NormalizedFeed) State {
	now := s.now()
	state := State{Feed: result, UpdatedAt: &now}
	if result.Degraded {
		state.Error = DegradedMessage
	}
	s.offline.Store(result.Degraded)

	s.mu.Lock()
	s.states[key] = state
	s.mu.Unlock()
	return state
}

func (s *ChartService) schedulePreload(key string, result *feed.NormalizedFeed) {
	if s.images == nil || s.jobs == nil || result.Degraded {
		return
	}
	urls := result.ArtworkURLs()
	if len(urls) == 0 {
		return
	}

	err := s.jobs.Submit(worker.Job{
		Name: "preload:" + key,
		Handler: func(ctx context.Context) error {
			s.images.PreloadImages(ctx, urls)
			return nil
		},
	})
	if err != nil {
		s.logger.Warn("Artwork preload not scheduled",
			zap.String("feed", key),
			zap.Int("images", len(urls)),
			zap.Error(err))
	}
}
