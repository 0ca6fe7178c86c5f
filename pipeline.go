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

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and operate on pipeline runs",
	}

	cmd.AddCommand(newPipelineShowCmd())
	cmd.AddCommand(newPipelineWatchCmd())
	cmd.AddCommand(newPipelineTriggerCmd())
	cmd.AddCommand(newPipelineRebuildCmd())
	cmd.AddCommand(newPipelineAbortCmd())

	return cmd
}

func newPipelineShowCmd() *cobra.Command {
	var appFlag string

	cmd := &cobra.Command{
		Use:   "show <pipeline-id>",
		Short: "Show a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			client, err := apiClient()
			if err != nil {
				return err
			}

			pipeline, err := client.GetPipeline(cmd.Context(), appSlug, args[0])
			if err != nil {
				return err
			}

			return printPipeline(&pipeline, appSlug)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")

	return cmd
}

func newPipelineWatchCmd() *cobra.Command {
	var (
		appFlag    string
		interval   int
		withNotify bool
	)

	cmd := &cobra.Command{
		Use:   "watch <pipeline-id>",
		Short: "Watch a pipeline until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			return runPipelineWatch(cmd.Context(), appSlug, args[0], interval, withNotify)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().IntVar(&interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send a desktop notification on completion")

	return cmd
}

func runPipelineWatch(ctx context.Context, appSlug, pipelineID string, interval int, withNotify bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	m := newMonitor(bitrise.PipelineJob{Client: client}, withNotify)
	h := monitor.Handle{App: appSlug, ID: pipelineID}
	pc := newPollContext(interval)

	webURL := "https://app.bitrise.io/app/" + appSlug + "/pipelines/" + pipelineID

	return runWatch(ctx, m, h, pc, "pipeline", webURL)
}

func newPipelineTriggerCmd() *cobra.Command {
	var (
		appFlag    string
		pipelineID string
		branch     string
		envFlags   []string
		wait       bool
		interval   int
		withNotify bool
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a new pipeline run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			envs, err := parseEnvFlags(envFlags)
			if err != nil {
				return err
			}

			params := bitrise.PipelineTriggerParams{PipelineID: pipelineID, Branch: branch, Environments: envs}

			return runPipelineTrigger(cmd.Context(), appSlug, params, wait, interval, withNotify)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVar(&pipelineID, "id", "", "pipeline to run (required)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to build")
	cmd.Flags().StringArrayVarP(&envFlags, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the pipeline completes")
	cmd.Flags().IntVar(&interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send a desktop notification on completion")

	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runPipelineTrigger(ctx context.Context, appSlug string, params bitrise.PipelineTriggerParams, wait bool, interval int, withNotify bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	pipeline, err := client.TriggerPipeline(ctx, appSlug, params)
	if err != nil {
		return err
	}

	statusf("Pipeline %s triggered\n", pipeline.ID)
	statusf("View at: %s\n", pipeline.WebURL(appSlug))

	if !wait {
		if jsonOutput() {
			return printPipeline(&pipeline, appSlug)
		}

		return nil
	}

	return waitPipeline(ctx, client, appSlug, pipeline.ID, interval, withNotify)
}

func newPipelineRebuildCmd() *cobra.Command {
	var (
		appFlag    string
		partial    bool
		wait       bool
		interval   int
		withNotify bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild <pipeline-id>",
		Short: "Re-run a pipeline, optionally only its failed workflows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			return runPipelineRebuild(cmd.Context(), appSlug, args[0], partial, wait, interval, withNotify)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().BoolVar(&partial, "partial", false, "only re-run failed workflows")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the pipeline completes")
	cmd.Flags().IntVar(&interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send a desktop notification on completion")

	return cmd
}

func runPipelineRebuild(ctx context.Context, appSlug, pipelineID string, partial, wait bool, interval int, withNotify bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	pipeline, err := client.RebuildPipeline(ctx, appSlug, pipelineID, partial)
	if err != nil {
		return err
	}

	statusf("Pipeline %s rebuilding\n", pipeline.ID)
	statusf("View at: %s\n", pipeline.WebURL(appSlug))

	if !wait {
		return nil
	}

	return waitPipeline(ctx, client, appSlug, pipeline.ID, interval, withNotify)
}

func waitPipeline(ctx context.Context, client *bitrise.Client, appSlug, pipelineID string, interval int, withNotify bool) error {
	m := newMonitor(bitrise.PipelineJob{Client: client}, withNotify)
	h := monitor.Handle{App: appSlug, ID: pipelineID}
	pc := newPollContext(interval)

	webURL := "https://app.bitrise.io/app/" + appSlug + "/pipelines/" + pipelineID

	return runWait(ctx, m, h, pc, "pipeline", webURL)
}

func newPipelineAbortCmd() *cobra.Command {
	var (
		appFlag string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "abort <pipeline-id>",
		Short: "Abort a running pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			client, err := apiClient()
			if err != nil {
				return err
			}

			if err := client.AbortPipeline(cmd.Context(), appSlug, args[0], reason); err != nil {
				return err
			}

			statusf("Pipeline %s aborted\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVar(&reason, "reason", "", "abort reason shown on the pipeline page")

	return cmd
}

func printPipeline(pl *bitrise.Pipeline, appSlug string) error {
	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(pl)
	}

	p := newPalette()
	snap := pl.Snapshot()

	fmt.Printf("Pipeline %s %s\n", p.bold(pl.ID), p.statusWord(snap.Status))
	fmt.Printf("  Branch:    %s\n", pl.Branch)
	fmt.Printf("  Triggered: %s\n", formatTime(pl.TriggeredAt))
	fmt.Printf("  Duration:  %s\n", snapshotDuration(snap))

	if pl.AbortReason != "" {
		fmt.Printf("  Reason:    %s\n", pl.AbortReason)
	}

	if len(snap.Stages) > 0 {
		fmt.Println("\n  Workflows:")

		for _, stage := range snap.Stages {
			fmt.Printf("    %s %s\n", p.statusGlyph(stage.Status), stage.Name)
		}
	}

	fmt.Printf("\n  %s %s\n", p.dim("View:"), pl.WebURL(appSlug))

	return nil
}
