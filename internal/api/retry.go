package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryConfig задаёт повторы клиентских вызовов.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	AttemptTimeout time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		BackoffFactor:  2.0,
		AttemptTimeout: 10 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

// Backoff возвращает задержку после неудачной попытки attempt (с 1).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.normalized()
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.BackoffFactor)
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// withRetry вызывает fn, пока ошибка повторяема и остаются попытки.
// Каждая попытка получает собственный таймаут; отмена ctx прерывает цикл.
func withRetry(ctx context.Context, cfg RetryConfig, logger *log.Entry, operation string, sleep func(context.Context, time.Duration) error, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{"operation": operation, "attempt": attempt}).Info("call succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).WithError(err).Warn("call failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": cfg.MaxAttempts,
	}).WithError(lastErr).Error("call failed after all retry attempts")
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
