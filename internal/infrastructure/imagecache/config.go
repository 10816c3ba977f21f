package imagecache

import "time"

// Config настройки кэша изображений
type Config struct {
	StorageKey        string
	FetchTimeout      time.Duration
	PersistDelay      time.Duration
	PersistTimeout    time.Duration
	BatchSize         int
	EvictFraction     float64
	MinEntriesToEvict int
	MaxImageBytes     int64

	// хосты, с которых разрешено скачивать: "img.example.com", "*.example.com" или "*"
	AllowedHosts []string
}

// DefaultConfig returns the recommended settings
func DefaultConfig() Config {
	return Config{
		StorageKey:        "imageCache",
		FetchTimeout:      10 * time.Second,
		PersistDelay:      time.Second,
		PersistTimeout:    5 * time.Second,
		BatchSize:         3,
		EvictFraction:     0.2,
		MinEntriesToEvict: 10,
		MaxImageBytes:     5 << 20,
		AllowedHosts:      DefaultAllowedHosts,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StorageKey == "" {
		c.StorageKey = d.StorageKey
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.PersistDelay <= 0 {
		c.PersistDelay = d.PersistDelay
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.EvictFraction <= 0 || c.EvictFraction >= 1 {
		c.EvictFraction = d.EvictFraction
	}
	if c.MinEntriesToEvict <= 0 {
		c.MinEntriesToEvict = d.MinEntriesToEvict
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = d.MaxImageBytes
	}
	if len(c.AllowedHosts) == 0 {
		c.AllowedHosts = d.AllowedHosts
	}
	return c
}
