package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/bitrise"
	"github.com/reprise-cli/reprise/internal/monitor"
)

func newLogCmd() *cobra.Command {
	var (
		appFlag    string
		follow     bool
		tail       int
		savePath   string
		interval   int
		withNotify bool
	)

	cmd := &cobra.Command{
		Use:   "log <build-slug>",
		Short: "Print or follow a build log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			if follow {
				return runLogFollow(cmd.Context(), appSlug, args[0], interval, withNotify)
			}

			return runLog(cmd.Context(), appSlug, args[0], tail, savePath)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new log lines until the build completes")
	cmd.Flags().IntVar(&tail, "tail", 0, "only print the last N lines")
	cmd.Flags().StringVar(&savePath, "save", "", "also save the full log to a file")
	cmd.Flags().IntVar(&interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send a desktop notification on completion")

	return cmd
}

func runLog(ctx context.Context, appSlug, buildSlug string, tail int, savePath string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	content, err := client.FullLog(ctx, appSlug, buildSlug)
	if err != nil {
		return err
	}

	if content == "" {
		return fmt.Errorf("log for build %s is empty or not yet available: %w",
			buildSlug, monitor.ErrLogNotAvailable)
	}

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if tail > 0 && tail < len(lines) {
		lines = lines[len(lines)-tail:]
	}

	if savePath != "" {
		if err := os.WriteFile(savePath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("saving log to %s: %w", savePath, err)
		}

		statusf("Log saved to: %s\n", savePath)
	}

	if jsonOutput() {
		payload := map[string]any{
			"build_slug": buildSlug,
			"log":        strings.Join(lines, "\n"),
			"lines":      len(lines),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(payload)
	}

	p := newPalette()
	for _, line := range lines {
		fmt.Println(highlightLogLine(p, line))
	}

	return nil
}

func runLogFollow(ctx context.Context, appSlug, buildSlug string, interval int, withNotify bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	m := newMonitor(bitrise.BuildJob{Client: client}, withNotify)
	h := monitor.Handle{App: appSlug, ID: buildSlug}
	pc := newPollContext(interval)

	webURL := "https://app.bitrise.io/build/" + buildSlug

	return runFollow(ctx, m, h, pc, "build", webURL)
}
