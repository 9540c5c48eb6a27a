package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/errors"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	BaseDelay  time.Duration // Initial delay before first retry
	MaxDelay   time.Duration // Maximum delay between retries
	Multiplier float64       // Exponential backoff multiplier
	Jitter     bool          // Whether to add random jitter to delays
}

// DefaultRetryConfig returns the configuration used for store reads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  25 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// WithMaxRetries returns a copy of the config with MaxRetries replaced.
// Negative values are treated as zero.
func (c RetryConfig) WithMaxRetries(n int) RetryConfig {
	if n < 0 {
		n = 0
	}
	c.MaxRetries = n
	return c
}

// Do runs op until it succeeds, returns a non-retryable error, retries are
// exhausted, or ctx is done. Only STORAGE_IO errors are retried.
func Do[T any](ctx context.Context, config RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				log.Debug().Int("attempts", attempt+1).Msg("read succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= config.MaxRetries {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, lastErr
		}

		delay := calculateDelay(config, attempt)
		log.Debug().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying read")

		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, errors.ErrStorageIO)
}

// calculateDelay calculates the delay for the next retry attempt using exponential backoff.
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	// Up to 10% jitter either way
	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}
