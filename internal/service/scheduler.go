package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"musiccharts/internal/domain/feed"
)

// Reloader is implemented by ChartService
type Reloader interface {
	Reload(ctx context.Context, req feed.Request) State
}

// WarmUpRecorder receives warm-up timing
type WarmUpRecorder interface {
	SetWarmUpFinished(at time.Time)
	SetNextWarmUp(next time.Time)
}

// WarmUpConfig настройки прогрева чартов
type WarmUpConfig struct {
	Schedule    string
	Countries   []string
	FeedTypes   []string
	Limit       int
	Concurrency int
	RunOnStart  bool
	Timeout     time.Duration
}

// Scheduler периодически перезагружает настроенные чарты
type Scheduler struct {
	charts   Reloader
	metrics  WarmUpRecorder
	cfg      WarmUpConfig
	requests []feed.Request
	cron     *cron.Cron
	entryID  cron.EntryID
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc

	// прогрев при старте идет вне cron
	startup sync.WaitGroup
}

// NewScheduler создает планировщик; некорректные пары страна/тип пропускаются
func NewScheduler(cfg WarmUpConfig, charts Reloader, metrics WarmUpRecorder, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	requests := make([]feed.Request, 0, len(cfg.Countries)*len(cfg.FeedTypes))
	for _, country := range cfg.Countries {
		for _, feedType := range cfg.FeedTypes {
			req, err := feed.NewRequest(feedType, country, cfg.Limit)
			if err != nil {
				logger.Warn("Skipping warm-up chart", zap.String("country", country),
					zap.String("type", feedType), zap.Error(err))
				continue
			}
			requests = append(requests, req)
		}
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("warm-up has no valid charts")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		charts:   charts,
		metrics:  metrics,
		cfg:      cfg,
		requests: requests,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	id, err := s.cron.AddFunc(s.cfg.Schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("invalid warm-up schedule %q: %w", s.cfg.Schedule, err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true
	s.updateNext()

	s.logger.Info("Scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Int("charts", len(s.requests)))

	if s.cfg.RunOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.runScheduled()
		}()
	}
	return nil
}

// Stop останавливает планировщик и ждет завершения текущего прогрева
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.WarmUp(ctx); err != nil {
		s.logger.Warn("Warm-up interrupted", zap.Error(err))
	}
}

// WarmUp reloads every configured chart with bounded concurrency
func (s *Scheduler) WarmUp(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("Warm-up started", zap.Int("charts", len(s.requests)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	var mu sync.Mutex
	degraded := 0
	for _, req := range s.requests {
		req := req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state := s.charts.Reload(gctx, req)
			if state.Feed != nil && state.Feed.Degraded {
				mu.Lock()
				degraded++
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	if s.metrics != nil {
		s.metrics.SetWarmUpFinished(time.Now())
	}
	s.updateNext()

	s.logger.Info("Warm-up finished",
		zap.Int("charts", len(s.requests)),
		zap.Int("degraded", degraded),
		zap.Duration("duration", time.Since(start)))
	return err
}

func (s *Scheduler) updateNext() {
	if s.metrics == nil || s.entryID == 0 {
		return
	}
	if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
		s.metrics.SetNextWarmUp(next)
	}
}

// Requests returns the charts covered by the warm-up
func (s *Scheduler) Requests() []feed.Request {
	return append([]feed.Request(nil), s.requests...)
}
