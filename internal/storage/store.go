// Package storage содержит хранилища "ключ-значение" для долговременного
// уровня кэша изображений: память, файлы, Redis и PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"musiccharts/internal/infrastructure/retry"
)

// ErrQuotaExceeded is returned when a value does not fit into the backend
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is a string key-value store with local-storage semantics
type Store interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend names
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend
type Config struct {
	Backend     string
	Dir         string
	QuotaBytes  int64
	RedisURL    string
	RedisPrefix string
	DatabaseURL string
	Connect     retry.Config
}

// Open creates the configured backend and checks that it is reachable
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		store = NewMemoryStore(cfg.QuotaBytes)
	case BackendFile, "":
		store, err = NewFileStore(cfg.Dir, cfg.QuotaBytes)
	case BackendRedis:
		store, err = NewRedisStoreFromURL(cfg.RedisURL, cfg.RedisPrefix, cfg.QuotaBytes, logger)
	case BackendPostgres:
		return NewPostgresStore(ctx, PostgresConfig{
			DatabaseURL: cfg.DatabaseURL,
			QuotaBytes:  cfg.QuotaBytes,
			Connect:     cfg.Connect,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, logger, "storage ping", cfg.Connect, store.Ping)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("storage backend %s is unreachable: %w", cfg.Backend, err)
	}

	logger.Info("Storage backend ready", zap.String("backend", cfg.Backend))
	return store, nil
}

// checkQuota rejects values larger than quota bytes; zero disables the check
func checkQuota(quota int64, key, value string) error {
	if quota > 0 && int64(len(value)) > quota {
		return fmt.Errorf("%w: %s needs %d bytes, quota is %d", ErrQuotaExceeded, key, len(value), quota)
	}
	return nil
}
