package monitor

import (
	"context"
	"log/slog"
)

// Poller repeatedly fetches a job snapshot at a fixed interval until the
// job reaches a terminal state or the token is cancelled. Each status
// fetch is wrapped in the retry policy; cancellation is re-checked both
// before and after the interval sleep, so a token cancelled mid-sleep
// stops the loop before the next remote call. An in-flight call
// (including its retry backoff) always completes first.
type Poller struct {
	client   JobClient
	notifier Notifier // optional; invoked at most once
	logger   *slog.Logger

	// sleepFunc waits between polls and between retries. Tests override
	// this to avoid real delays.
	sleepFunc SleepFunc
}

// NewPoller creates a Poller. notifier may be nil.
func NewPoller(client JobClient, notifier Notifier, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		client:    client,
		notifier:  notifier,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Run polls until the job is terminal or cancellation is observed.
// onTransition, when non-nil, fires for the first snapshot and for every
// subsequent status change; it is the sole presentation extension point.
// The interval sleep happens before the first fetch so a freshly triggered
// job has time to register remotely.
func (p *Poller) Run(ctx context.Context, h Handle, pc PollContext, onTransition func(Snapshot)) (Outcome, error) {
	pc = pc.normalized()
	retry := RetryPolicy{
		MaxRetries: pc.MaxRetries,
		Sleep:      p.sleepFunc,
		Logger:     p.logger,
	}

	var last Snapshot
	var seen bool

	for {
		if pc.Token.Cancelled() {
			p.logger.Debug("poll cancelled", slog.String("job", h.ID))
			return Outcome{Snapshot: last, Seen: seen, Cancelled: true}, nil
		}

		if err := p.sleepFunc(ctx, pc.Interval); err != nil {
			return Outcome{Snapshot: last, Seen: seen, Cancelled: true}, nil
		}

		// A Ctrl+C during the sleep must not trigger another fetch.
		if pc.Token.Cancelled() {
			p.logger.Debug("poll cancelled", slog.String("job", h.ID))
			return Outcome{Snapshot: last, Seen: seen, Cancelled: true}, nil
		}

		snap, err := Do(ctx, retry, func(ctx context.Context) (Snapshot, error) {
			return p.client.Snapshot(ctx, h)
		})
		if err != nil {
			return Outcome{Snapshot: last, Seen: seen}, err
		}

		if !seen || snap.Status != last.Status {
			p.logger.Debug("status transition",
				slog.String("job", h.ID),
				slog.String("status", snap.Status.String()),
			)

			if onTransition != nil {
				onTransition(snap)
			}
		}

		last, seen = snap, true

		if snap.Status.Terminal() {
			if p.notifier != nil {
				p.notifier.Completed(snap)
			}

			return Outcome{Snapshot: snap, Seen: true}, nil
		}
	}
}
