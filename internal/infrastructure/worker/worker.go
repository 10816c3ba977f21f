// Package worker реализует пул воркеров для фоновых задач сервиса.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ошибки
var (
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

// Pool пул воркеров для фоновых задач
type Pool struct {
	workers  int
	jobQueue chan Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.Logger
	metrics  *Metrics
	stopOnce sync.Once
	stopped  bool
	mu       sync.RWMutex
	metricMu sync.Mutex
}

// Убеждаемся, что Pool реализует PoolInterface
var _ PoolInterface = (*Pool)(nil)

// Job представляет задачу для обработки. Контекст отменяется при остановке пула.
type Job struct {
	Name    string
	Handler func(ctx context.Context) error
}

// Metrics метрики воркер пула
type Metrics struct {
	ProcessedJobs  int64
	FailedJobs     int64
	ProcessingTime time.Duration
	QueueSize      int
}

// NewWorkerPool создает новый пул воркеров
func NewWorkerPool(workers int, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		metrics:  &Metrics{},
	}
}

// Start запускает пул воркеров
func (wp *Pool) Start() {
	wp.logger.Info("Starting worker pool", zap.Int("workers", wp.workers))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop останавливает пул: новые задачи не принимаются, текущие получают отмену контекста
func (wp *Pool) Stop() {
	wp.logger.Info("Stopping worker pool")

	// Безопасное закрытие jobQueue
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.stopped = true
		wp.mu.Unlock()
		wp.cancel()
		close(wp.jobQueue)
	})

	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}

// Submit добавляет задачу в очередь без ожидания
func (wp *Pool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrStopped
	}

	select {
	case wp.jobQueue <- job:
		wp.updateQueueSize()
		return nil
	default:
		return ErrQueueFull
	}
}

func (wp *Pool) updateQueueSize() {
	wp.metricMu.Lock()
	wp.metrics.QueueSize = len(wp.jobQueue)
	wp.metricMu.Unlock()
}

// worker основной цикл воркера
func (wp *Pool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Worker started", zap.Int("worker_id", id))

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			// пул остановлен, оставшиеся задачи отбрасываются
			continue
		}
		wp.processJob(job, id)
		wp.updateQueueSize()
	}

	wp.logger.Debug("Worker stopping", zap.Int("worker_id", id))
}

// processJob обрабатывает задачу
func (wp *Pool) processJob(job Job, workerID int) {
	startTime := time.Now()

	wp.logger.Debug("Processing job",
		zap.Int("worker_id", workerID),
		zap.String("job", job.Name))

	err := wp.run(job)
	duration := time.Since(startTime)

	wp.metricMu.Lock()
	if err != nil {
		wp.metrics.FailedJobs++
	} else {
		wp.metrics.ProcessedJobs++
	}
	wp.metrics.ProcessingTime += duration
	wp.metricMu.Unlock()

	if err != nil {
		wp.logger.Error("Job processing failed",
			zap.Int("worker_id", workerID),
			zap.String("job", job.Name),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	wp.logger.Debug("Job processed successfully",
		zap.Int("worker_id", workerID),
		zap.String("job", job.Name),
		zap.Duration("duration", duration))
}

func (wp *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Handler(wp.ctx)
}

// GetMetrics возвращает текущие метрики
func (wp *Pool) GetMetrics() Metrics {
	wp.metricMu.Lock()
	defer wp.metricMu.Unlock()
	return *wp.metrics
}
