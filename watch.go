package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/reprise-cli/reprise/internal/monitor"
	"github.com/reprise-cli/reprise/internal/notify"
)

// defaultPollInterval is the default seconds between polls for all
// monitoring modes.
const defaultPollInterval = 5

// newPollContext builds the per-invocation monitoring configuration and
// hooks the cancellation token up to the interrupt handler. Each monitoring
// command calls this exactly once.
func newPollContext(intervalSecs int) monitor.PollContext {
	if intervalSecs <= 0 {
		intervalSecs = defaultPollInterval
	}

	token := monitor.NewToken()
	monitor.InstallHandler(token, rootLogger)

	return monitor.PollContext{
		Interval: time.Duration(intervalSecs) * time.Second,
		Token:    token,
	}
}

// newMonitor wires a monitor for the given job kind. The notifier is only
// attached when the user passed --notify.
func newMonitor(client monitor.JobClient, withNotify bool) *monitor.Monitor {
	var notifier monitor.Notifier
	if withNotify {
		notifier = notify.New(rootCfg.Defaults.AppName, rootLogger)
	}

	return monitor.New(client, notifier, rootLogger)
}

// runWait blocks until the job completes, then prints the final summary
// with duration and abort reason.
func runWait(ctx context.Context, m *monitor.Monitor, h monitor.Handle, pc monitor.PollContext, kind, webURL string) error {
	statusf("\n-> Waiting for %s to complete (Ctrl+C to stop)...\n", kind)

	out, err := m.Wait(ctx, h, pc)
	if err != nil {
		return monitorFailed(err, kind, webURL)
	}

	printOutcome(out, kind, webURL)

	return nil
}

// runWatch polls and prints a one-line status update on every transition,
// with per-stage markers for composite jobs.
func runWatch(ctx context.Context, m *monitor.Monitor, h monitor.Handle, pc monitor.PollContext, kind, webURL string) error {
	statusf("-> Watching %s (Ctrl+C to stop)...\n\n", kind)

	p := newPalette()

	out, err := m.Watch(ctx, h, pc, func(snap monitor.Snapshot) {
		printTransition(p, snap, kind)
	})
	if err != nil {
		return monitorFailed(err, kind, webURL)
	}

	printOutcome(out, kind, webURL)

	return nil
}

// runFollow tails the job's log to stdout until the job completes.
func runFollow(ctx context.Context, m *monitor.Monitor, h monitor.Handle, pc monitor.PollContext, kind, webURL string) error {
	statusf("-> Following %s log (Ctrl+C to stop)...\n\n", kind)

	p := newPalette()

	out, err := m.Follow(ctx, h, pc, func(line string) {
		if jsonOutput() {
			payload, _ := json.Marshal(map[string]string{"line": line})
			fmt.Println(string(payload))

			return
		}

		fmt.Println(highlightLogLine(p, line))
	})
	if err != nil {
		return monitorFailed(err, kind, webURL)
	}

	printOutcome(out, kind, webURL)

	return nil
}

// monitorFailed wraps a monitoring error so the user can still locate the
// job, which keeps running remotely regardless of the local failure.
func monitorFailed(err error, kind, webURL string) error {
	return fmt.Errorf("monitoring %s failed (it continues at %s): %w", kind, webURL, err)
}

// printTransition renders one status-change line.
func printTransition(p palette, snap monitor.Snapshot, kind string) {
	if jsonOutput() {
		payload, _ := json.Marshal(map[string]string{
			"ref":      snap.Ref,
			"status":   snap.Label,
			"duration": snapshotDuration(snap),
		})
		fmt.Println(string(payload))

		return
	}

	fmt.Printf("%s %s %s - %s (%s)\n",
		p.cyan("->"), kind, snap.Ref, p.statusWord(snap.Status), snapshotDuration(snap))

	for _, stage := range snap.Stages {
		fmt.Printf("   %s %s\n", p.statusGlyph(stage.Status), stage.Name)
	}
}

// printOutcome renders the final state of a monitoring run. On
// cancellation it points the user back at the job, which continues
// remotely.
func printOutcome(out monitor.Outcome, kind, webURL string) {
	if out.Cancelled {
		statusf("\n! Interrupted - %s continues in background\n  View at: %s\n", kind, webURL)
		return
	}

	if jsonOutput() {
		printSnapshotJSON(out.Snapshot)
		return
	}

	p := newPalette()
	snap := out.Snapshot

	var msg string

	switch snap.Status {
	case monitor.StatusSuccess:
		msg = fmt.Sprintf("%s %s completed successfully", p.green("✓"), kind)
	case monitor.StatusFailed:
		msg = fmt.Sprintf("%s %s failed", p.red("✗"), kind)
	case monitor.StatusAborted:
		msg = fmt.Sprintf("%s %s aborted", p.yellow("!"), kind)
	default:
		msg = fmt.Sprintf("%s %s finished", p.cyan("->"), kind)
	}

	statusf("\n%s\n  Duration: %s\n", msg, snapshotDuration(snap))

	if snap.AbortReason != "" {
		statusf("  Reason:   %s\n", snap.AbortReason)
	}

	for _, stage := range snap.Stages {
		statusf("    %s %s\n", p.statusGlyph(stage.Status), stage.Name)
	}

	statusf("\n  View at: %s\n", webURL)
}

// printSnapshotJSON writes the final snapshot to stdout as JSON.
func printSnapshotJSON(snap monitor.Snapshot) {
	type stageJSON struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}

	payload := struct {
		Ref         string      `json:"ref"`
		Status      string      `json:"status"`
		Label       string      `json:"label"`
		Duration    string      `json:"duration"`
		AbortReason string      `json:"abort_reason,omitempty"`
		Stages      []stageJSON `json:"stages,omitempty"`
	}{
		Ref:         snap.Ref,
		Status:      snap.Status.String(),
		Label:       snap.Label,
		Duration:    snapshotDuration(snap),
		AbortReason: snap.AbortReason,
	}

	for _, stage := range snap.Stages {
		payload.Stages = append(payload.Stages, stageJSON{Name: stage.Name, Status: stage.Status.String()})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
