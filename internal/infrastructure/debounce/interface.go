package debounce

import "time"

// DebouncerInterface определяет интерфейс для дебаунсера
type DebouncerInterface interface {
	CanProcessRequest(key string) bool
	RetryAfter(key string) time.Duration
}
