package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reprise-cli/reprise/internal/monitor"
)

func captureNotifier(appName string) (*Desktop, *[]string, *[]string) {
	d := New(appName, nil)

	var titles, bodies []string
	d.send = func(title, body string) error {
		titles = append(titles, title)
		bodies = append(bodies, body)
		return nil
	}

	return d, &titles, &bodies
}

func TestCompletedTitles(t *testing.T) {
	tests := []struct {
		name   string
		status monitor.Status
		want   string
	}{
		{"success", monitor.StatusSuccess, "My App: completed successfully"},
		{"failed", monitor.StatusFailed, "My App: failed"},
		{"aborted", monitor.StatusAborted, "My App: aborted"},
		{"unknown", monitor.StatusUnknown, "My App: finished"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, titles, _ := captureNotifier("My App")

			d.Completed(monitor.Snapshot{Status: tt.status, Ref: "#1", Label: tt.name})

			require.Len(t, *titles, 1)
			assert.Equal(t, tt.want, (*titles)[0])
		})
	}
}

func TestCompletedEmptyAppNameFallsBack(t *testing.T) {
	d, titles, _ := captureNotifier("")

	d.Completed(monitor.Snapshot{Status: monitor.StatusSuccess, Ref: "#1", Label: "success"})

	require.Len(t, *titles, 1)
	assert.Equal(t, "Bitrise: completed successfully", (*titles)[0])
}

func TestCompletedBodyIncludesDuration(t *testing.T) {
	d, _, bodies := captureNotifier("My App")

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.Completed(monitor.Snapshot{
		Status:     monitor.StatusSuccess,
		Ref:        "#142",
		Label:      "success",
		StartedAt:  start,
		FinishedAt: start.Add(3*time.Minute + 12*time.Second),
	})

	require.Len(t, *bodies, 1)
	assert.Equal(t, "Job #142 success\nDuration: 3m12s", (*bodies)[0])
}

func TestCompletedBodyWithoutDuration(t *testing.T) {
	d, _, bodies := captureNotifier("My App")

	d.Completed(monitor.Snapshot{Status: monitor.StatusFailed, Ref: "#7", Label: "failed"})

	require.Len(t, *bodies, 1)
	assert.Equal(t, "Job #7 failed", (*bodies)[0])
}

func TestCompletedSwallowsDeliveryFailure(t *testing.T) {
	d := New("My App", nil)
	d.send = func(string, string) error {
		return errors.New("no desktop session")
	}

	// Must not panic or propagate.
	d.Completed(monitor.Snapshot{Status: monitor.StatusSuccess, Ref: "#1", Label: "success"})
}
