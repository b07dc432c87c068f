package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/metrics"
)

// BackoffConfig holds the rate-limit retry policy.
type BackoffConfig struct {
	MaxRetries int           // Total attempts before giving up
	Base       time.Duration // Wait after the first throttled attempt
	Factor     float64       // Growth per attempt
	MaxDelay   time.Duration // Cap on a single wait, 0 for none
}

// DefaultBackoffConfig returns the stock policy: 5 attempts, 5s base, x1.5.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries: 5,
		Base:       5 * time.Second,
		Factor:     1.5,
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Backoff retries calls that were rate limited and gives up on everything
// else.
type Backoff struct {
	cfg    BackoffConfig
	sleep  SleepFunc
	logger *slog.Logger
}

// NewBackoff creates a Backoff. Non-positive fields fall back to defaults.
func NewBackoff(cfg BackoffConfig, logger *slog.Logger) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.Factor <= 0 {
		cfg.Factor = def.Factor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backoff{
		cfg:    cfg,
		sleep:  sleepContext,
		logger: logger.With("component", "backoff"),
	}
}

// WithSleep replaces the wait function, mainly for tests.
func (b *Backoff) WithSleep(fn SleepFunc) *Backoff {
	cp := *b
	cp.sleep = fn
	return &cp
}

// Config returns the effective policy.
func (b *Backoff) Config() BackoffConfig { return b.cfg }

// Delay returns the wait after the given zero-based attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := float64(b.cfg.Base) * math.Pow(b.cfg.Factor, float64(attempt))
	if b.cfg.MaxDelay > 0 && d > float64(b.cfg.MaxDelay) {
		d = float64(b.cfg.MaxDelay)
	}
	return time.Duration(d)
}

// Call runs fn until it succeeds, fails with something other than a rate
// limit, or the attempt budget runs out. An exhausted budget yields an
// apierr.KindTerminalRateLimit error.
func Call[T any](ctx context.Context, b *Backoff, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("backoff: context cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !apierr.Is(err, apierr.KindRateLimited) {
			return zero, err
		}

		// No wait after the final attempt.
		if attempt == b.cfg.MaxRetries-1 {
			break
		}

		delay := b.Delay(attempt)
		metrics.BackoffWaitsTotal.WithLabelValues(name).Inc()
		b.logger.Warn("rate limited, backing off",
			"call", name,
			"attempt", attempt+1,
			"max_attempts", b.cfg.MaxRetries,
			"delay", delay,
		)

		if err := b.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("backoff: context cancelled during wait: %w", err)
		}
	}

	return zero, apierr.TerminalRateLimit(name, b.cfg.MaxRetries, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
