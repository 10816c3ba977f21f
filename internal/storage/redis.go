package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisPrefix namespaces keys written by the service
const DefaultRedisPrefix = "musiccharts:"

// RedisStore хранит значения в Redis под общим префиксом
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	quota  int64
	logger *zap.Logger
}

// NewRedisStore wraps an existing client
func NewRedisStore(rdb *redis.Client, prefix string, quota int64, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, quota: quota, logger: logger}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily
func NewRedisStoreFromURL(redisURL, prefix string, quota int64, logger *zap.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return NewRedisStore(redis.NewClient(opt), prefix, quota, logger), nil
}

func (s *RedisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := checkQuota(s.quota, key, value); err != nil {
		return err
	}
	err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err()
	if err != nil {
		if isOutOfMemory(err) {
			s.logger.Warn("Redis rejected write, maxmemory reached", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// isOutOfMemory detects the OOM error reply sent when maxmemory is hit
func isOutOfMemory(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}
