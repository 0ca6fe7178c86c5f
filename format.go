package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/reprise-cli/reprise/internal/monitor"
)

// statusf prints a status message to stderr unless quiet mode is set.
// Status messages go to stderr so stdout pipes cleanly.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// ANSI color codes.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// palette applies ANSI colors when stdout is a terminal and NO_COLOR is
// unset. A disabled palette passes strings through unchanged.
type palette struct {
	enabled bool
}

func newPalette() palette {
	return palette{
		enabled: isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == "",
	}
}

func (p palette) paint(code, s string) string {
	if !p.enabled {
		return s
	}

	return code + s + ansiReset
}

func (p palette) red(s string) string    { return p.paint(ansiRed, s) }
func (p palette) green(s string) string  { return p.paint(ansiGreen, s) }
func (p palette) yellow(s string) string { return p.paint(ansiYellow, s) }
func (p palette) cyan(s string) string   { return p.paint(ansiCyan, s) }
func (p palette) dim(s string) string    { return p.paint(ansiDim, s) }
func (p palette) bold(s string) string   { return p.paint(ansiBold, s) }

// statusWord returns the upper-case status colored for display.
func (p palette) statusWord(s monitor.Status) string {
	word := strings.ToUpper(s.String())

	switch s {
	case monitor.StatusRunning:
		return p.yellow(word)
	case monitor.StatusSuccess:
		return p.green(word)
	case monitor.StatusFailed:
		return p.red(word)
	case monitor.StatusAborted:
		return p.red(word)
	default:
		return p.dim(word)
	}
}

// statusGlyph returns the single-character stage marker used in pipeline
// watch output.
func (p palette) statusGlyph(s monitor.Status) string {
	switch s {
	case monitor.StatusRunning:
		return p.yellow("●")
	case monitor.StatusSuccess:
		return p.green("✓")
	case monitor.StatusFailed:
		return p.red("✗")
	case monitor.StatusAborted:
		return p.dim("○")
	default:
		return p.dim("?")
	}
}

// formatDuration renders a duration the way the web UI does: seconds under
// a minute, minutes and seconds under an hour, hours and minutes beyond.
func formatDuration(d time.Duration) string {
	secs := int64(d.Seconds())

	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// snapshotDuration renders a snapshot's duration, or "-" when the job has
// not both started and finished.
func snapshotDuration(snap monitor.Snapshot) string {
	d, ok := snap.Duration()
	if !ok {
		return "-"
	}

	return formatDuration(d)
}

// formatTime returns a compact timestamp for list display.
func formatTime(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// highlightLogLine colors a log line by content: errors red, warnings
// yellow, success markers green.
func highlightLogLine(p palette, line string) string {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "error"),
		strings.Contains(lower, "failed"),
		strings.Contains(lower, "failure"),
		strings.Contains(lower, "fatal"),
		strings.Contains(lower, "exception"),
		strings.Contains(lower, "panic"),
		strings.HasPrefix(line, "E "):
		return p.red(line)

	case strings.Contains(lower, "warning"),
		strings.Contains(lower, "warn"),
		strings.HasPrefix(line, "W "):
		return p.yellow(line)

	case strings.Contains(lower, "success"),
		strings.Contains(lower, "passed"),
		strings.Contains(lower, "completed"),
		strings.Contains(line, "BUILD SUCCESSFUL"):
		return p.green(line)

	default:
		return line
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
