// Package retry runs an operation again after transient failures, with
// exponential backoff between attempts. The mail gateway uses it around
// ingest deliveries so a restarting server does not lose messages.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts counts every call including the first. Values below 1
	// mean a single attempt.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt; each further
	// wait doubles until MaxDelay.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// ShouldRetry classifies errors. Nil retries everything.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits short HTTP calls to a service that may be restarting.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = func(error) bool { return true }
	}
	return c
}

// Do runs fn until it succeeds, the attempts run out, ShouldRetry rejects
// the error, or ctx is cancelled. The last attempt's error is returned;
// cancellation mid-backoff joins the context error onto it.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.normalized()

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Debug("retrying after failure",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"error", lastErr, "delay", delay)
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
