package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollStep is one scripted Snapshot response.
type pollStep struct {
	snap Snapshot
	err  error
}

// scriptedJob plays back canned Snapshot and Log responses in order,
// repeating the last entry once the script runs out.
type scriptedJob struct {
	snapSteps []pollStep
	snapCalls int

	logTexts []string
	logErrs  []error
	logCalls int
}

func (j *scriptedJob) Snapshot(context.Context, Handle) (Snapshot, error) {
	i := j.snapCalls
	if i >= len(j.snapSteps) {
		i = len(j.snapSteps) - 1
	}
	j.snapCalls++

	return j.snapSteps[i].snap, j.snapSteps[i].err
}

func (j *scriptedJob) Log(context.Context, Handle) (string, error) {
	i := j.logCalls
	if i >= len(j.logTexts) {
		i = len(j.logTexts) - 1
	}
	j.logCalls++

	var err error
	if i < len(j.logErrs) {
		err = j.logErrs[i]
	}

	return j.logTexts[i], err
}

// countNotifier records completion notifications.
type countNotifier struct {
	calls int
	last  Snapshot
}

func (n *countNotifier) Completed(snap Snapshot) {
	n.calls++
	n.last = snap
}

func running() Snapshot {
	return Snapshot{Status: StatusRunning, Label: "running", Ref: "#1"}
}

func succeeded() Snapshot {
	return Snapshot{Status: StatusSuccess, Label: "success", Ref: "#1"}
}

func testHandle() Handle {
	return Handle{App: "app-slug", ID: "build-slug"}
}

func TestPollerRunsUntilTerminal(t *testing.T) {
	job := &scriptedJob{snapSteps: []pollStep{
		{snap: running()},
		{snap: running()},
		{snap: succeeded()},
	}}

	var delays []time.Duration
	p := NewPoller(job, nil, nil)
	p.sleepFunc = recordSleep(&delays)

	var transitions []Status
	out, err := p.Run(context.Background(), testHandle(), PollContext{Interval: 5 * time.Second}, func(snap Snapshot) {
		transitions = append(transitions, snap.Status)
	})

	require.NoError(t, err)
	assert.True(t, out.Seen)
	assert.False(t, out.Cancelled)
	assert.Equal(t, StatusSuccess, out.Snapshot.Status)

	// One transition on first observation, one on the change; the repeated
	// running snapshot fires nothing.
	assert.Equal(t, []Status{StatusRunning, StatusSuccess}, transitions)
	assert.Equal(t, 3, job.snapCalls)

	// One interval sleep before every fetch.
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, delays)
}

func TestPollerSleepsBeforeFirstFetch(t *testing.T) {
	job := &scriptedJob{snapSteps: []pollStep{{snap: succeeded()}}}

	var events []string
	p := NewPoller(&orderedJob{inner: job, events: &events}, nil, nil)
	p.sleepFunc = func(context.Context, time.Duration) error {
		events = append(events, "sleep")
		return nil
	}

	_, err := p.Run(context.Background(), testHandle(), PollContext{Interval: time.Second}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"sleep", "fetch"}, events)
}

// orderedJob records fetch events so interleaving with sleeps is visible.
type orderedJob struct {
	inner  JobClient
	events *[]string
}

func (j *orderedJob) Snapshot(ctx context.Context, h Handle) (Snapshot, error) {
	*j.events = append(*j.events, "fetch")
	return j.inner.Snapshot(ctx, h)
}

func (j *orderedJob) Log(ctx context.Context, h Handle) (string, error) {
	return j.inner.Log(ctx, h)
}

func TestPollerNotifiesExactlyOnce(t *testing.T) {
	job := &scriptedJob{snapSteps: []pollStep{
		{snap: running()},
		{snap: succeeded()},
	}}

	notifier := &countNotifier{}
	p := NewPoller(job, notifier, nil)

	var delays []time.Duration
	p.sleepFunc = recordSleep(&delays)

	out, err := p.Run(context.Background(), testHandle(), PollContext{Interval: time.Second}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, StatusSuccess, notifier.last.Status)
	assert.Equal(t, out.Snapshot, notifier.last)
}

func TestPollerCancelledBeforeFirstPoll(t *testing.T) {
	job := &scriptedJob{snapSteps: []pollStep{{snap: running()}}}
	notifier := &countNotifier{}

	p := NewPoller(job, notifier, nil)

	var delays []time.Duration
	p.sleepFunc = recordSleep(&delays)

	token := NewToken()
	token.Cancel()

	transitions := 0
	out, err := p.Run(context.Background(), testHandle(),
		PollContext{Interval: time.Second, Token: token},
		func(Snapshot) { transitions++ })

	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.False(t, out.Seen)
	assert.Zero(t, job.snapCalls)
	assert.Zero(t, transitions)
	assert.Zero(t, notifier.calls)
}

func TestPollerCancelledBetweenPolls(t *testing.T) {
	token := NewToken()

	job := &scriptedJob{snapSteps: []pollStep{{snap: running()}}}
	p := NewPoller(job, nil, nil)
	p.sleepFunc = func(context.Context, time.Duration) error {
		// Cancel after the first full iteration's sleep.
		if job.snapCalls > 0 {
			token.Cancel()
		}
		return nil
	}

	out, err := p.Run(context.Background(), testHandle(),
		PollContext{Interval: time.Second, Token: token}, nil)

	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.True(t, out.Seen)
	assert.Equal(t, StatusRunning, out.Snapshot.Status)
	assert.Equal(t, 1, job.snapCalls)
}

func TestPollerCancelledDuringSleepSkipsFetch(t *testing.T) {
	token := NewToken()

	job := &scriptedJob{snapSteps: []pollStep{{snap: running()}}}
	notifier := &countNotifier{}

	p := NewPoller(job, notifier, nil)
	p.sleepFunc = func(context.Context, time.Duration) error {
		// Interrupt arrives while the loop is asleep between polls.
		token.Cancel()
		return nil
	}

	transitions := 0
	out, err := p.Run(context.Background(), testHandle(),
		PollContext{Interval: time.Second, Token: token},
		func(Snapshot) { transitions++ })

	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.False(t, out.Seen)
	assert.Zero(t, job.snapCalls)
	assert.Zero(t, transitions)
	assert.Zero(t, notifier.calls)
}

func TestPollerRetriesTransientFetches(t *testing.T) {
	transient := &statusErr{code: 503}

	job := &scriptedJob{snapSteps: []pollStep{
		{err: transient},
		{err: transient},
		{err: transient},
		{err: transient},
		{snap: succeeded()},
	}}

	var delays []time.Duration
	p := NewPoller(job, nil, nil)
	p.sleepFunc = recordSleep(&delays)

	out, err := p.Run(context.Background(), testHandle(), PollContext{Interval: time.Second}, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Snapshot.Status)
	assert.Equal(t, 5, job.snapCalls)

	// The interval sleep, then backoffs of 1, 2, 4 and 8 units.
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, delays)
}

func TestPollerGivesUpAfterRetryBudget(t *testing.T) {
	transient := &statusErr{code: 500}
	job := &scriptedJob{snapSteps: []pollStep{{err: transient}}}
	notifier := &countNotifier{}

	var delays []time.Duration
	p := NewPoller(job, notifier, nil)
	p.sleepFunc = recordSleep(&delays)

	out, err := p.Run(context.Background(), testHandle(),
		PollContext{Interval: time.Second, MaxRetries: 2}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, error(transient))
	assert.False(t, out.Seen)
	assert.Equal(t, 3, job.snapCalls)
	assert.Zero(t, notifier.calls)
}

func TestPollerPermanentErrorPropagates(t *testing.T) {
	permanent := &statusErr{code: 404}
	job := &scriptedJob{snapSteps: []pollStep{{err: permanent}}}

	var delays []time.Duration
	p := NewPoller(job, nil, nil)
	p.sleepFunc = recordSleep(&delays)

	_, err := p.Run(context.Background(), testHandle(), PollContext{Interval: time.Second}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, error(permanent))
	assert.Equal(t, 1, job.snapCalls)
}

func TestPollerUnknownStatusIsTerminal(t *testing.T) {
	job := &scriptedJob{snapSteps: []pollStep{
		{snap: Snapshot{Status: StatusUnknown, Label: "unknown"}},
	}}

	var delays []time.Duration
	p := NewPoller(job, nil, nil)
	p.sleepFunc = recordSleep(&delays)

	out, err := p.Run(context.Background(), testHandle(), PollContext{Interval: time.Second}, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, out.Snapshot.Status)
	assert.Equal(t, 1, job.snapCalls)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusAborted.Terminal())
	assert.True(t, StatusUnknown.Terminal())
}

func TestSnapshotDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := Snapshot{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	d, ok := snap.Duration()
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	_, ok = Snapshot{StartedAt: start}.Duration()
	assert.False(t, ok)

	_, ok = Snapshot{}.Duration()
	assert.False(t, ok)
}

func TestTimeSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timeSleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeSleepReturnsAfterDuration(t *testing.T) {
	err := timeSleep(context.Background(), time.Millisecond)
	assert.NoError(t, err)
}

func TestPollerNilTokenDefaults(t *testing.T) {
	job := &scriptedJob{snapSteps: []pollStep{{snap: succeeded()}}}

	var delays []time.Duration
	p := NewPoller(job, nil, nil)
	p.sleepFunc = recordSleep(&delays)

	out, err := p.Run(context.Background(), testHandle(), PollContext{Interval: time.Second}, nil)

	require.NoError(t, err)
	assert.False(t, out.Cancelled)
}
