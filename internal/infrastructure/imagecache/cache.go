// Package imagecache реализует двухуровневый кэш обложек: память процесса и
// сохраняемый уровень в storage.Store. Значения хранятся как base64 data URI.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"musiccharts/internal/infrastructure/debounce"
	"musiccharts/internal/storage"
)

// Cache tiers as reported to metrics
const (
	tierMemory    = "memory"
	tierPersisted = "persisted"
)

const bytesPerMB = 1024 * 1024

// Recorder receives cache events
type Recorder interface {
	RecordCacheHit(tier string)
	RecordCacheMiss()
	RecordImageFetch(ok bool)
	RecordEviction(count int)
	RecordPersistFailure()
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string) {}
func (nopRecorder) RecordCacheMiss() {}
func (nopRecorder) RecordImageFetch(bool) {}
func (nopRecorder) RecordEviction(int) {}
func (nopRecorder) RecordPersistFailure() {}

// Stats describes the current cache contents
type Stats struct {
	MemoryEntries    int  `json:"memory_entries"`
	PersistedEntries int  `json:"persisted_entries"`
	PersistPending   bool `json:"persist_pending"`
}

// Cache — кэш изображений. Память авторитетна в рамках процесса,
// сохраняемый уровень пишется с дебаунсом.
type Cache struct {
	cfg     Config
	store   storage.Store
	doer    HTTPDoer
	hosts   hostList
	logger  *zap.Logger
	metrics Recorder

	mu        sync.RWMutex
	memory    map[string]string
	persisted *entries

	persister *debounce.Trailing
	persistMu sync.Mutex
}

// Option configures a Cache
type Option func(*Cache)

// WithMetrics sets the metrics recorder
func WithMetrics(m Recorder) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates an empty cache. Call Load to read the persisted tier.
func New(cfg Config, store storage.Store, doer HTTPDoer, logger *zap.Logger, opts ...Option) *Cache {
	cfg = cfg.withDefaults()
	hosts := newHostList(cfg.AllowedHosts)
	c := &Cache{
		cfg:       cfg,
		store:     store,
		doer:      restrictRedirects(doer, hosts),
		hosts:     hosts,
		logger:    logger,
		metrics:   nopRecorder{},
		memory:    make(map[string]string),
		persisted: newEntries(),
		persister: debounce.NewTrailing(cfg.PersistDelay),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the persisted tier with the stored snapshot.
// A missing or corrupt snapshot leaves the tier empty.
func (c *Cache) Load(ctx context.Context) error {
	raw, ok, err := c.store.GetItem(ctx, c.cfg.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to read image cache: %w", err)
	}

	loaded := newEntries()
	if ok && raw != "" {
		if err := loaded.UnmarshalJSON([]byte(raw)); err != nil {
			c.logger.Warn("Stored image cache is corrupt, starting empty", zap.Error(err))
			loaded = newEntries()
		}
	}

	c.mu.Lock()
	c.persisted = loaded
	c.mu.Unlock()

	c.logger.Info("Image cache loaded", zap.Int("entries", loaded.Len()))
	return nil
}

// GetCachedImage returns a display source for url: a cached data URI or,
// when the image cannot be fetched and encoded, url itself.
func (c *Cache) GetCachedImage(ctx context.Context, url string) string {
	if url == "" || strings.HasPrefix(url, "data:") {
		return url
	}

	if v, tier, ok := c.lookup(url); ok {
		c.metrics.RecordCacheHit(tier)
		return v
	}
	c.metrics.RecordCacheMiss()

	if err := c.hosts.check(url); err != nil {
		c.logger.Debug("Image URL rejected", zap.String("url", url), zap.Error(err))
		return url
	}

	encoded, err := c.fetch(ctx, url)
	if err != nil {
		c.metrics.RecordImageFetch(false)
		c.logger.Debug("Image not cached, serving original URL",
			zap.String("url", url),
			zap.Error(err))
		return url
	}

	c.put(url, encoded)
	c.metrics.RecordImageFetch(true)
	return encoded
}

// lookup checks memory first, then the persisted tier, promoting hits into memory
func (c *Cache) lookup(url string) (string, string, bool) {
	c.mu.RLock()
	v, ok := c.memory[url]
	c.mu.RUnlock()
	if ok {
		return v, tierMemory, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.persisted.Get(url); ok {
		c.memory[url] = v
		return v, tierPersisted, true
	}
	return "", "", false
}

func (c *Cache) put(url, encoded string) {
	c.mu.Lock()
	c.memory[url] = encoded
	c.persisted.Set(url, encoded)
	c.mu.Unlock()

	c.schedulePersist()
}

// resident reports whether url is in either tier
func (c *Cache) resident(url string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.memory[url]; ok {
		return true
	}
	_, ok := c.persisted.Get(url)
	return ok
}

// PreloadImages caches urls that are not resident yet, BatchSize at a time.
// Failures are ignored; a cancelled ctx stops before the next batch.
// It returns the number of URLs it tried to fetch.
func (c *Cache) PreloadImages(ctx context.Context, urls []string) int {
	seen := make(map[string]struct{}, len(urls))
	pending := make([]string, 0, len(urls))
	for _, url := range urls {
		if url == "" || strings.HasPrefix(url, "data:") {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		if c.hosts.check(url) != nil {
			continue
		}
		if !c.resident(url) {
			pending = append(pending, url)
		}
	}

	attempted := 0
	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		if ctx.Err() != nil {
			c.logger.Debug("Image preload cancelled",
				zap.Int("attempted", attempted),
				zap.Int("pending", len(pending)))
			break
		}

		end := start + c.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}

		var g errgroup.Group
		for _, url := range pending[start:end] {
			url := url
			g.Go(func() error {
				c.GetCachedImage(ctx, url)
				return nil
			})
		}
		_ = g.Wait()
		attempted += end - start
	}

	if attempted > 0 {
		c.logger.Debug("Images preloaded", zap.Int("attempted", attempted))
	}
	return attempted
}

// ClearCache empties both tiers and removes the stored snapshot
func (c *Cache) ClearCache(ctx context.Context) error {
	c.persister.Cancel()
	c.persister.Wait()

	c.mu.Lock()
	c.memory = make(map[string]string)
	c.persisted = newEntries()
	c.mu.Unlock()

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if err := c.store.RemoveItem(ctx, c.cfg.StorageKey); err != nil {
		return fmt.Errorf("failed to remove image cache: %w", err)
	}
	c.logger.Info("Image cache cleared")
	return nil
}

// RemoveFromCache drops url from both tiers. It reports whether url was cached.
func (c *Cache) RemoveFromCache(url string) bool {
	c.mu.Lock()
	_, inMemory := c.memory[url]
	delete(c.memory, url)
	inPersisted := c.persisted.Delete(url)
	c.mu.Unlock()

	if inPersisted {
		c.schedulePersist()
	}
	return inMemory || inPersisted
}

// CacheSize estimates the stored snapshot size in megabytes (two bytes per character)
func (c *Cache) CacheSize(ctx context.Context) float64 {
	raw, ok, err := c.store.GetItem(ctx, c.cfg.StorageKey)
	if err != nil || !ok {
		return 0
	}
	return float64(len(raw)*2) / bytesPerMB
}

// Stats returns entry counts for both tiers
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		MemoryEntries:    len(c.memory),
		PersistedEntries: c.persisted.Len(),
		PersistPending:   c.persister.Pending(),
	}
}

// Flush writes a pending snapshot immediately. It returns only after a
// write started by the debounce timer has finished, so the store can be
// closed afterwards.
func (c *Cache) Flush(ctx context.Context) error {
	pending := c.persister.Cancel()
	c.persister.Wait()
	if !pending {
		return nil
	}
	return c.persist(ctx)
}

func (c *Cache) schedulePersist() {
	c.persister.Trigger(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
		defer cancel()
		_ = c.persist(ctx)
	})
}

func (c *Cache) snapshot() ([]byte, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.persisted.MarshalJSON()
	return data, c.persisted.Len(), err
}

// persist writes the latest snapshot. On a quota error with more than
// MinEntriesToEvict entries the oldest EvictFraction is dropped and the
// write is retried once.
func (c *Cache) persist(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	data, count, err := c.snapshot()
	if err != nil {
		c.metrics.RecordPersistFailure()
		return fmt.Errorf("failed to encode image cache: %w", err)
	}

	err = c.store.SetItem(ctx, c.cfg.StorageKey, string(data))
	if err == nil {
		c.logger.Debug("Image cache persisted", zap.Int("entries", count), zap.Int("bytes", len(data)))
		return nil
	}

	if !errors.Is(err, storage.ErrQuotaExceeded) {
		c.metrics.RecordPersistFailure()
		c.logger.Error("Failed to persist image cache", zap.Error(err))
		return err
	}

	if count <= c.cfg.MinEntriesToEvict {
		c.metrics.RecordPersistFailure()
		c.logger.Warn("Image cache exceeds storage quota, too few entries to evict",
			zap.Int("entries", count),
			zap.Error(err))
		return err
	}

	removed := c.evict(int(float64(count) * c.cfg.EvictFraction))
	c.metrics.RecordEviction(removed)

	data, count, err = c.snapshot()
	if err != nil {
		c.metrics.RecordPersistFailure()
		return fmt.Errorf("failed to encode image cache: %w", err)
	}
	if err := c.store.SetItem(ctx, c.cfg.StorageKey, string(data)); err != nil {
		c.metrics.RecordPersistFailure()
		c.logger.Warn("Image cache still exceeds storage quota after eviction",
			zap.Int("evicted", removed),
			zap.Int("entries", count),
			zap.Error(err))
		return err
	}

	c.logger.Info("Image cache persisted after eviction",
		zap.Int("evicted", removed),
		zap.Int("entries", count))
	return nil
}

// evict removes the oldest n entries from the persisted tier. The memory tier keeps them.
func (c *Cache) evict(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted.EvictOldest(n)
}
