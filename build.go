package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/bitrise"
	"github.com/reprise-cli/reprise/internal/monitor"
)

func newBuildCmd() *cobra.Command {
	var (
		appFlag    string
		watch      bool
		wait       bool
		interval   int
		withNotify bool
	)

	cmd := &cobra.Command{
		Use:   "build <build-slug>",
		Short: "Show a build, optionally watching it until completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			return runBuild(cmd.Context(), appSlug, args[0], watch, wait, interval, withNotify)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().BoolVar(&watch, "watch", false, "watch status transitions until the build completes")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the build completes")
	cmd.Flags().IntVar(&interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send a desktop notification on completion")

	return cmd
}

func runBuild(ctx context.Context, appSlug, buildSlug string, watch, wait bool, interval int, withNotify bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	build, err := client.GetBuild(ctx, appSlug, buildSlug)
	if err != nil {
		return err
	}

	if (watch || wait) && build.IsRunning() {
		m := newMonitor(bitrise.BuildJob{Client: client}, withNotify)
		h := monitor.Handle{App: appSlug, ID: buildSlug}
		pc := newPollContext(interval)

		if watch {
			return runWatch(ctx, m, h, pc, "build", build.WebURL())
		}

		return runWait(ctx, m, h, pc, "build", build.WebURL())
	}

	return printBuild(&build)
}

func printBuild(b *bitrise.Build) error {
	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(b)
	}

	p := newPalette()
	snap := b.Snapshot()

	fmt.Printf("Build %s %s\n", p.bold(fmt.Sprintf("#%d", b.BuildNumber)), p.statusWord(snap.Status))
	fmt.Printf("  Slug:      %s\n", b.Slug)
	fmt.Printf("  Branch:    %s\n", b.Branch)
	fmt.Printf("  Workflow:  %s\n", b.TriggeredWorkflow)
	fmt.Printf("  Triggered: %s\n", formatTime(b.TriggeredAt))
	fmt.Printf("  Duration:  %s\n", snapshotDuration(snap))

	if b.CommitHash != "" {
		fmt.Printf("  Commit:    %s\n", b.CommitHash)
	}

	if b.AbortReason != "" {
		fmt.Printf("  Reason:    %s\n", b.AbortReason)
	}

	fmt.Printf("\n  %s %s\n", p.dim("View:"), b.WebURL())

	return nil
}
