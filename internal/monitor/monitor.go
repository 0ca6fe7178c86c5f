package monitor

import (
	"context"
	"log/slog"
)

// Monitor composes the poller and tailer into the monitoring modes the CLI
// exposes: Wait (block until terminal), Watch (per-transition display),
// Follow (log tailing), and TriggerAndWait. One Monitor is built per
// invocation and job kind; the job-kind variance lives entirely in the
// JobClient implementation.
type Monitor struct {
	client   JobClient
	notifier Notifier // nil unless the user asked for notifications
	logger   *slog.Logger

	// sleepFunc propagates to the poller and tailer; tests override it.
	sleepFunc SleepFunc
}

// New creates a Monitor. notifier may be nil.
func New(client JobClient, notifier Notifier, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		client:    client,
		notifier:  notifier,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Wait polls status only, blocking until the job is terminal or the user
// cancels. The final snapshot carries the duration and abort-reason fields
// the caller surfaces.
func (m *Monitor) Wait(ctx context.Context, h Handle, pc PollContext) (Outcome, error) {
	return m.Watch(ctx, h, pc, nil)
}

// Watch polls status and fires onTransition every time the observed status
// changes (including the first observation).
func (m *Monitor) Watch(ctx context.Context, h Handle, pc PollContext, onTransition func(Snapshot)) (Outcome, error) {
	p := NewPoller(m.client, m.notifier, m.logger)
	p.sleepFunc = m.sleepFunc

	return p.Run(ctx, h, pc, onTransition)
}

// Follow tails the job's log until it is terminal, emitting each new line
// through onLine.
func (m *Monitor) Follow(ctx context.Context, h Handle, pc PollContext, onLine func(string)) (Outcome, error) {
	t := NewTailer(m.client, m.notifier, m.logger)
	t.sleepFunc = m.sleepFunc

	return t.Run(ctx, h, pc, onLine)
}

// TriggerAndWait triggers a new job through the supplied function, then
// immediately waits on the resulting handle. The handle is returned even
// when waiting fails so the caller can tell the user where the job lives.
func (m *Monitor) TriggerAndWait(ctx context.Context, trigger func(ctx context.Context) (Handle, error), pc PollContext) (Handle, Outcome, error) {
	h, err := trigger(ctx)
	if err != nil {
		return Handle{}, Outcome{}, err
	}

	out, err := m.Wait(ctx, h, pc)

	return h, out, err
}
