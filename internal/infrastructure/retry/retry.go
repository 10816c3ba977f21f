// Package retry реализует повтор операций с экспоненциальной задержкой.
package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config конфигурация для retry механизма
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Func is an operation that may be retried
type Func func(ctx context.Context) error

// Do runs fn until it succeeds, retries are exhausted or ctx is done.
// The last error is returned.
func Do(ctx context.Context, logger *zap.Logger, operation string, config Config, fn Func) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if attempt == config.MaxRetries {
			break
		}

		delay := Backoff(config, attempt)
		logger.Warn("Retry attempt failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", config.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Backoff returns the delay before the retry following attempt (zero based)
func Backoff(config Config, attempt int) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
