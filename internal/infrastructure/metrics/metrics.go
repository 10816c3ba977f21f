// Package metrics реализует внутренние счетчики сервиса чартов.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache tiers
const (
	TierMemory    = "memory"
	TierPersisted = "persisted"
)

var _ Interface = (*Metrics)(nil)

type strategyStats struct {
	successes int64
	failures  int64
	totalTime time.Duration
}

// Metrics представляет систему метрик сервиса
type Metrics struct {
	mu sync.RWMutex

	// Метрики фидов
	strategies map[string]*strategyStats
	fallbacks  int64

	// Метрики кэша изображений
	memoryHits      int64
	persistedHits   int64
	cacheMisses     int64
	cacheHitRate    float64
	imageFetches    int64
	imageFailures   int64
	evictedEntries  int64
	persistFailures int64

	// Метрики производительности
	avgResponseTime time.Duration
	totalRequests   int64
	errorCount      int64

	// Системные метрики
	lastWarmUp time.Time
	nextWarmUp time.Time
	uptime     time.Time

	logger *zap.Logger
}

// NewMetrics создает новую систему метрик
func NewMetrics(logger *zap.Logger) *Metrics {
	return &Metrics{
		strategies: make(map[string]*strategyStats),
		uptime:     time.Now(),
		logger:     logger,
	}
}

// RecordStrategyResult записывает результат одной стратегии получения фида
func (m *Metrics) RecordStrategyResult(strategy string, ok bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.strategies[strategy]
	if !exists {
		s = &strategyStats{}
		m.strategies[strategy] = s
	}
	if ok {
		s.successes++
	} else {
		s.failures++
	}
	s.totalTime += duration
}

// RecordFallback записывает выдачу запасного фида
func (m *Metrics) RecordFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallbacks++
	m.logger.Debug("Fallback feed served", zap.Int64("total", m.fallbacks))
}

// RecordCacheHit записывает попадание в кэш изображений
func (m *Metrics) RecordCacheHit(tier string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tier == TierPersisted {
		m.persistedHits++
	} else {
		m.memoryHits++
	}
	m.updateCacheHitRate()
}

// RecordCacheMiss записывает промах кэша
func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cacheMisses++
	m.updateCacheHitRate()
}

// RecordImageFetch записывает загрузку изображения из сети
func (m *Metrics) RecordImageFetch(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.imageFetches++
	} else {
		m.imageFailures++
	}
}

// RecordEviction записывает вытеснение записей из сохраняемого уровня
func (m *Metrics) RecordEviction(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictedEntries += int64(count)
}

// RecordPersistFailure записывает неудачную запись в хранилище
func (m *Metrics) RecordPersistFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.persistFailures++
}

// RecordResponseTime записывает время ответа
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	// Простое скользящее среднее
	if m.avgResponseTime == 0 {
		m.avgResponseTime = duration
	} else {
		m.avgResponseTime = (m.avgResponseTime + duration) / 2
	}
}

// RecordError записывает ошибку
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorCount++
}

// SetWarmUpFinished отмечает окончание прогрева
func (m *Metrics) SetWarmUpFinished(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastWarmUp = at
}

// SetNextWarmUp устанавливает время следующего прогрева
func (m *Metrics) SetNextWarmUp(next time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextWarmUp = next
}

// GetStats возвращает все метрики в виде map
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	strategies := make(map[string]interface{}, len(m.strategies))
	for name, s := range m.strategies {
		var avg time.Duration
		if total := s.successes + s.failures; total > 0 {
			avg = s.totalTime / time.Duration(total)
		}
		strategies[name] = map[string]interface{}{
			"successes":    s.successes,
			"failures":     s.failures,
			"avg_duration": m.formatDuration(avg),
		}
	}

	return map[string]interface{}{
		"feeds": map[string]interface{}{
			"strategies": strategies,
			"fallbacks":  m.fallbacks,
		},
		"images": map[string]interface{}{
			"memory_hits":      m.memoryHits,
			"persisted_hits":   m.persistedHits,
			"cache_misses":     m.cacheMisses,
			"cache_hit_rate":   m.cacheHitRate,
			"fetched":          m.imageFetches,
			"fetch_failures":   m.imageFailures,
			"evicted_entries":  m.evictedEntries,
			"persist_failures": m.persistFailures,
		},
		"performance": map[string]interface{}{
			"avg_response_time": m.formatDuration(m.avgResponseTime),
			"total_requests":    m.totalRequests,
			"error_count":       m.errorCount,
			"error_rate":        m.calculateErrorRate(),
		},
		"system": map[string]interface{}{
			"uptime":       m.formatDuration(time.Since(m.uptime)),
			"last_warm_up": m.formatTime(m.lastWarmUp),
			"next_warm_up": m.formatTime(m.nextWarmUp),
		},
	}
}

// updateCacheHitRate обновляет процент попаданий в кэш
func (m *Metrics) updateCacheHitRate() {
	hits := m.memoryHits + m.persistedHits
	total := hits + m.cacheMisses
	if total > 0 {
		m.cacheHitRate = float64(hits) / float64(total) * 100
	}
}

// calculateErrorRate вычисляет процент ошибок
func (m *Metrics) calculateErrorRate() float64 {
	if m.totalRequests > 0 {
		return float64(m.errorCount) / float64(m.totalRequests) * 100
	}
	return 0
}

// formatTime возвращает время в RFC3339 или "never"
func (m *Metrics) formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

// formatDuration форматирует duration с двумя знаками после запятой
func (m *Metrics) formatDuration(d time.Duration) string {
	if d >= time.Minute {
		return d.Truncate(time.Second).String()
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
