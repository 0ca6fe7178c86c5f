// Package monitor implements the live-monitoring engine shared by every
// command that waits on, watches, or follows a remote job: cooperative
// cancellation, bounded retry of transient API failures, fixed-interval
// status polling with transition detection, full-log tailing with local
// delta computation, and one-shot completion notification.
package monitor

import (
	"context"
	"time"
)

// Status is the closed set of job states the engine understands.
// Running is the only non-terminal value; Unknown covers any status code
// the remote service reports outside the known set and is treated as
// terminal everywhere.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailed
	StatusAborted
	StatusUnknown
)

// Terminal reports whether the job will never change status again.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Handle addresses one remote job: the owning app slug plus the job's own
// identifier (build slug or pipeline ID). Immutable once created.
type Handle struct {
	App string
	ID  string
}

// Stage is the status of one sub-stage of a composite job (a pipeline
// workflow). Builds have no stages.
type Stage struct {
	Name   string
	Status Status
}

// Snapshot is the last-observed state of a job. A fresh Snapshot is
// produced on every poll and supersedes the previous one; the engine never
// mutates a Snapshot in place.
type Snapshot struct {
	Status      Status
	Label       string // human status text from the API
	Ref         string // display reference, e.g. "#142" or a pipeline ID
	TriggeredAt time.Time
	StartedAt   time.Time // zero until the job starts
	FinishedAt  time.Time // zero until the job finishes
	AbortReason string
	Stages      []Stage
}

// Duration returns the job's run duration, or false if the start or finish
// timestamp is not yet available.
func (s Snapshot) Duration() (time.Duration, bool) {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0, false
	}

	return s.FinishedAt.Sub(s.StartedAt), true
}

// Outcome is the result of one monitoring run. Cancelled reports that the
// user interrupted the monitor; the remote job keeps running and Snapshot
// holds the last state observed before the interrupt (Seen is false when
// no poll completed).
type Outcome struct {
	Snapshot  Snapshot
	Seen      bool
	Cancelled bool
}

// JobClient fetches the remote state of one kind of job. Implemented by
// the API client's build and pipeline adapters.
type JobClient interface {
	// Snapshot fetches a fresh status snapshot.
	Snapshot(ctx context.Context, h Handle) (Snapshot, error)
	// Log fetches the entire current log text. The remote API has no
	// incremental fetch; the tailer recomputes deltas locally.
	Log(ctx context.Context, h Handle) (string, error)
}

// Notifier delivers a best-effort completion notification. Implementations
// must swallow delivery failures.
type Notifier interface {
	Completed(snap Snapshot)
}

// PollContext bundles the per-invocation monitoring configuration. It is
// constructed once and never mutated afterward except through the token it
// references.
type PollContext struct {
	Interval   time.Duration
	MaxRetries int // transient-error retry budget per remote call
	Token      *Token
}

// defaultRetryBudget is the transient retry budget applied when the caller
// leaves MaxRetries unset.
const defaultRetryBudget = 5

// normalized fills in defaults for zero-valued fields.
func (pc PollContext) normalized() PollContext {
	if pc.MaxRetries <= 0 {
		pc.MaxRetries = defaultRetryBudget
	}

	if pc.Token == nil {
		pc.Token = NewToken()
	}

	return pc
}

// SleepFunc waits for the given duration or until the context is canceled.
// Tests inject instant implementations that record requested delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// timeSleep is the default SleepFunc.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
