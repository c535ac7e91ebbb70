// Package retry wraps remote calls that may fail or hang with bounded
// attempts, a per-attempt timeout, and exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Timeout bounds each individual attempt. The attempt's context is
	// cancelled when it elapses, so the underlying call is actually torn
	// down rather than left in flight.
	Timeout time.Duration
	// InitialBackoff is the wait after the first failed attempt. Each
	// subsequent wait doubles: 1s, 2s, 4s, ...
	InitialBackoff time.Duration
	Logger         *zap.Logger
}

// DefaultConfig mirrors the defaults used across the service.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    2,
		Timeout:        12 * time.Second,
		InitialBackoff: time.Second,
		Logger:         zap.NewNop(),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Do runs op with bounded attempts and returns the last error once they are
// exhausted. Used on write paths where the caller must see the failure.
func Do(ctx context.Context, cfg Config, label string, op func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				cfg.Logger.Info("operation succeeded after retry",
					zap.String("context", label),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = err
		timedOut := errors.Is(err, context.DeadlineExceeded)
		cfg.Logger.Warn("attempt failed",
			zap.String("context", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Bool("timed_out", timedOut),
			zap.Error(err),
		)

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(cfg.InitialBackoff, attempt)):
		}
	}

	return lastErr
}

// Fetch runs op and returns its result, or fallback once attempts are
// exhausted. It never returns an error: read paths that use it degrade to the
// fallback value instead of blocking the caller. A successful call that
// produces a nil-able nil result also yields the fallback.
func Fetch[T any](ctx context.Context, cfg Config, label string, op func(context.Context) (T, error), fallback T) T {
	cfg = cfg.withDefaults()

	var result T
	err := Do(ctx, cfg, label, func(attemptCtx context.Context) error {
		var opErr error
		result, opErr = op(attemptCtx)
		return opErr
	})
	if err != nil {
		cfg.Logger.Error("all attempts exhausted, returning fallback",
			zap.String("context", label),
			zap.Int("attempts", cfg.MaxAttempts),
			zap.Error(err),
		)
		return fallback
	}
	if isNil(result) {
		return fallback
	}
	return result
}

// backoff returns 2^(attempt-1) times the initial delay.
func backoff(initial time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	case reflect.Invalid:
		return true
	default:
		return false
	}
}
