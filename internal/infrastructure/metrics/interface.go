package metrics

import "time"

// Interface определяет интерфейс для системы метрик
type Interface interface {
	// RecordStrategyResult записывает результат стратегии получения фида
	RecordStrategyResult(strategy string, ok bool, duration time.Duration)

	// RecordFallback записывает выдачу запасного фида
	RecordFallback()

	// RecordCacheHit записывает попадание в кэш указанного уровня
	RecordCacheHit(tier string)

	// RecordCacheMiss записывает промах кэша
	RecordCacheMiss()

	RecordImageFetch(ok bool)
	RecordEviction(count int)
	RecordPersistFailure()

	// RecordResponseTime записывает время ответа
	RecordResponseTime(duration time.Duration)

	// RecordError записывает ошибку
	RecordError()

	SetWarmUpFinished(at time.Time)
	SetNextWarmUp(next time.Time)

	// GetStats возвращает все метрики в виде map
	GetStats() map[string]interface{}
}
