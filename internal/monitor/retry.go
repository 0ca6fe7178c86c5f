package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy wraps a single remote call with bounded exponential backoff.
// Only transient failures (server-side, 5xx-equivalent) are retried;
// everything else propagates immediately. Each logical call gets fresh
// retry state — the attempt counter never carries over between calls.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Zero means no retries.
	MaxRetries int
	// Unit is the backoff time unit; delays are Unit<<(attempt-1), i.e.
	// 1, 2, 4, 8, 16... units with no jitter. Defaults to one second.
	Unit   time.Duration
	Sleep  SleepFunc
	Logger *slog.Logger
}

// transienter is implemented by errors that know whether retrying is
// worthwhile. The API client's error type implements it by classifying
// its HTTP status code.
type transienter interface {
	Transient() bool
}

// IsTransient reports whether err represents a transient remote failure.
func IsTransient(err error) bool {
	var t transienter
	return errors.As(err, &t) && t.Transient()
}

// Do invokes op, retrying transient failures per the policy. On success the
// value is returned immediately. Permanent errors are attempted exactly
// once. After the retry budget is exhausted the last error is returned.
func Do[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.Unit <= 0 {
		p.Unit = time.Second
	}

	if p.Sleep == nil {
		p.Sleep = timeSleep
	}

	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	var attempt int
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		if !IsTransient(err) || attempt >= p.MaxRetries {
			return v, err
		}

		attempt++
		backoff := p.Unit << (attempt - 1)
		p.Logger.Warn("retrying after transient error",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if sleepErr := p.Sleep(ctx, backoff); sleepErr != nil {
			var zero T
			return zero, fmt.Errorf("monitor: retry interrupted: %w", sleepErr)
		}
	}
}
