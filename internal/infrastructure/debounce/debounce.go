// Package debounce реализует дебаунс: ограничение частоты запросов по ключу
// и отложенный запуск с переносом срока.
package debounce

import (
	"strings"
	"sync"
	"time"
)

// Debouncer rate-limits requests per key
type Debouncer struct {
	lastRequest map[string]time.Time
	timeout     time.Duration
	overrides   map[string]time.Duration
	now         func() time.Time
	mu          sync.Mutex
}

var _ DebouncerInterface = (*Debouncer)(nil)

const defaultDebounceTimeout = 5 * time.Second

// NewDebouncer creates a Debouncer. Keys have the form "scope:name";
// overrides maps a name to its own timeout.
func NewDebouncer(timeout time.Duration, overrides map[string]time.Duration) *Debouncer {
	if timeout <= 0 {
		timeout = defaultDebounceTimeout
	}
	return &Debouncer{
		lastRequest: make(map[string]time.Time),
		timeout:     timeout,
		overrides:   overrides,
		now:         time.Now,
	}
}

// CanProcessRequest checks if a request can be processed based on the last request time
func (d *Debouncer) CanProcessRequest(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	last, exists := d.lastRequest[key]
	if !exists {
		d.lastRequest[key] = now
		return true
	}

	// Проверяем, прошло ли достаточно времени
	if now.Sub(last) < d.timeoutFor(key) {
		return false
	}

	d.lastRequest[key] = now
	return true
}

// RetryAfter returns how long the caller has to wait before key is accepted again
func (d *Debouncer) RetryAfter(key string) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, exists := d.lastRequest[key]
	if !exists {
		return 0
	}
	wait := d.timeoutFor(key) - d.now().Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

func (d *Debouncer) timeoutFor(key string) time.Duration {
	if name, ok := extractNameFromKey(key); ok {
		if custom, exists := d.overrides[name]; exists {
			return custom
		}
	}
	return d.timeout
}

// extractNameFromKey извлекает имя операции из ключа дебаунса
func extractNameFromKey(key string) (string, bool) {
	// Ключ имеет формат: "scope:name"
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return parts[1], true
	}
	return "", false
}
