// Package notify delivers best-effort desktop notifications when a
// monitored job completes. Delivery failure is an observability gap, not a
// monitoring failure: it is logged and swallowed.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/reprise-cli/reprise/internal/monitor"
)

// sender dispatches one notification. Split out so tests can capture
// titles and bodies without a desktop session.
type sender func(title, body string) error

// Desktop sends completion notifications through the OS notifier.
// The zero value is not usable; call New.
type Desktop struct {
	appName string // display prefix, e.g. the Bitrise app title
	logger  *slog.Logger
	send    sender
}

// New creates a Desktop notifier. appName may be empty.
func New(appName string, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}

	return &Desktop{
		appName: appName,
		logger:  logger,
		send: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
	}
}

// Completed maps the terminal snapshot to a title/body pair and dispatches
// it. Invoked at most once per monitoring invocation, by the engine.
func (d *Desktop) Completed(snap monitor.Snapshot) {
	title := d.title(snap)
	body := fmt.Sprintf("Job %s %s", snap.Ref, snap.Label)

	if dur, ok := snap.Duration(); ok {
		body += fmt.Sprintf("\nDuration: %s", dur.Round(time.Second))
	}

	if err := d.send(title, body); err != nil {
		d.logger.Warn("failed to deliver notification", slog.String("error", err.Error()))
	}
}

func (d *Desktop) title(snap monitor.Snapshot) string {
	prefix := d.appName
	if prefix == "" {
		prefix = "Bitrise"
	}

	switch snap.Status {
	case monitor.StatusSuccess:
		return prefix + ": completed successfully"
	case monitor.StatusFailed:
		return prefix + ": failed"
	case monitor.StatusAborted:
		return prefix + ": aborted"
	default:
		return prefix + ": finished"
	}
}
