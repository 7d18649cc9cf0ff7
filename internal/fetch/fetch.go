// Package fetch wraps gateway calls with bounded retry and exponential
// backoff. Transient failures are retried up to the attempt cap, permanent
// failures abort immediately, and exhaustion surfaces as a typed FetchError
// instead of the raw cause.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config bounds the retry loop. Zero values fall back to the defaults of
// 3 attempts and a 2s..30s backoff window.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	return c
}

// Delay returns the backoff before attempt+1, doubling off BaseDelay and
// capped at MaxDelay. attempt is 1-based.
func (c Config) Delay(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Do runs fn with bounded retry. Only failures wrapped as TransientError are
// retried; PermanentError (and anything unclassified) terminates at once.
// Every attempt and failure is logged with server and operation context.
func Do[T any](ctx context.Context, logger *slog.Logger, cfg Config, server, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		logger.Debug("fetch attempt", "server", server, "operation", operation, "attempt", attempt)

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		var transient *TransientError
		if !errors.As(err, &transient) {
			logger.Error("fetch failed permanently", "server", server, "operation", operation, "attempt", attempt, "error", err)
			return zero, &FetchError{Server: server, Operation: operation, Attempts: attempt, Cause: err}
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		wait := cfg.Delay(attempt)
		logger.Warn("fetch attempt failed, backing off", "server", server, "operation", operation, "attempt", attempt, "retry_in", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	logger.Error("fetch retries exhausted", "server", server, "operation", operation, "attempts", cfg.MaxAttempts, "error", lastErr)
	return zero, &FetchError{Server: server, Operation: operation, Attempts: cfg.MaxAttempts, Cause: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
