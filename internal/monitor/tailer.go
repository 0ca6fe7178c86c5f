package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrLogNotAvailable indicates the job has finished but its log could not
// be fetched — it will never appear, so waiting longer is pointless.
var ErrLogNotAvailable = errors.New("monitor: log not available")

// Tailer surfaces the newly appended portion of a job's log by refetching
// the full text each interval and slicing off the lines already emitted.
// The emitted line count only ever increases within one run; a log that
// shrinks (a remote anomaly) yields an empty delta rather than an
// underflow or duplicated output.
type Tailer struct {
	client    JobClient
	notifier  Notifier // optional; invoked at most once
	logger    *slog.Logger
	sleepFunc SleepFunc
}

// NewTailer creates a Tailer. notifier may be nil.
func NewTailer(client JobClient, notifier Notifier, logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tailer{
		client:    client,
		notifier:  notifier,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Run tails the job's log until the job is terminal or cancellation is
// observed, invoking onLine for each newly appended line. A log fetch
// failure while the job is still running means the log is not yet
// available and is silently retried next interval; the same failure after
// the job has finished wraps ErrLogNotAvailable. A failed status probe is
// tolerated: the job is assumed to still be running.
func (t *Tailer) Run(ctx context.Context, h Handle, pc PollContext, onLine func(string)) (Outcome, error) {
	pc = pc.normalized()

	var last Snapshot
	var seen bool
	var emitted int

	for {
		if pc.Token.Cancelled() {
			t.logger.Debug("tail cancelled", slog.String("job", h.ID))
			return Outcome{Snapshot: last, Seen: seen, Cancelled: true}, nil
		}

		running := true

		snap, err := t.client.Snapshot(ctx, h)
		if err != nil {
			t.logger.Debug("status probe failed during tail",
				slog.String("job", h.ID),
				slog.String("error", err.Error()),
			)
		} else {
			last, seen = snap, true
			running = !snap.Status.Terminal()
		}

		text, err := t.client.Log(ctx, h)
		if err != nil {
			if running {
				// Log not yet available — try again next interval.
				if sleepErr := t.sleepFunc(ctx, pc.Interval); sleepErr != nil {
					return Outcome{Snapshot: last, Seen: seen, Cancelled: true}, nil
				}

				continue
			}

			return Outcome{Snapshot: last, Seen: seen},
				fmt.Errorf("job %s finished but log fetch failed: %w", h.ID, ErrLogNotAvailable)
		}

		lines := splitLines(text)
		if len(lines) > emitted {
			for _, line := range lines[emitted:] {
				onLine(line)
			}

			emitted = len(lines)
		}

		if !running {
			if t.notifier != nil {
				t.notifier.Completed(last)
			}

			return Outcome{Snapshot: last, Seen: seen}, nil
		}

		if err := t.sleepFunc(ctx, pc.Interval); err != nil {
			return Outcome{Snapshot: last, Seen: seen, Cancelled: true}, nil
		}
	}
}

// splitLines splits log text into lines, ignoring a trailing newline so a
// terminated final line is not counted twice across fetches.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
