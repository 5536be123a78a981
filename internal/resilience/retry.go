// Package resilience guards imagery and OSM fetches with retries and a
// circuit breaker. The HTTP transport in internal/fetcher already smooths
// over individual failed requests; this layer wraps whole fetch operations
// in the tile fan-out, where a misbehaving upstream would otherwise burn
// through every tile.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retries of a fetch operation. Zero values take the
// defaults.
type RetryConfig struct {
	// Attempts is the total number of tries including the first. Default: 4.
	Attempts int

	// BaseDelay is the wait before the first retry; it doubles per attempt.
	// Default: 2s, roughly the CDSE processing-unit refill interval.
	BaseDelay time.Duration

	// MaxDelay caps the doubled delay. Default: 45s.
	MaxDelay time.Duration

	// Jitter spreads the delay by ±Jitter fraction so parallel tile workers
	// do not retry in lockstep. Default: 0.
	Jitter float64

	// ShouldRetry decides whether an error is worth another try. Defaults to
	// IsTransient, which retries throttles and upstream hiccups but not
	// request defects.
	ShouldRetry func(err error) bool

	// OnRetry is called with the attempt number and error before each wait.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the retry settings used for Copernicus and
// Overpass calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  4,
		BaseDelay: 2 * time.Second,
		MaxDelay:  45 * time.Second,
		Jitter:    0.2,
	}
}

// Do runs fn until it succeeds, the error is not retryable, the attempts are
// exhausted or the context ends.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that return a value, preserving the result of
// the successful attempt.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 45 * time.Second
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || attempt >= cfg.Attempts-1 || !shouldRetry(err) {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return zero, err
		case <-time.After(backoff(cfg, attempt)):
		}
	}
}

// backoff doubles BaseDelay per attempt up to MaxDelay, then applies jitter.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay
	for i := 0; i < attempt && d < cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + cfg.Jitter*(2*rand.Float64()-1)))
	}
	return d
}

// RetryLogger returns an OnRetry callback logging each retry of the named
// service operation.
func RetryLogger(service, operation string) func(int, error) {
	log := zap.L().With(
		zap.String("component", "resilience"),
		zap.String("service", service),
		zap.String("operation", operation),
	)
	return func(attempt int, err error) {
		log.Warn("retrying fetch", zap.Int("attempt", attempt), zap.Error(err))
	}
}
