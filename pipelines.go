package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/bitrise"
)

func newPipelinesCmd() *cobra.Command {
	var (
		appFlag string
		branch  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List pipeline runs for an app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			return runPipelines(cmd.Context(), appSlug, bitrise.PipelineFilter{Branch: branch, Limit: limit})
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVar(&branch, "branch", "", "filter by branch")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of pipelines to list")

	return cmd
}

func runPipelines(ctx context.Context, appSlug string, filter bitrise.PipelineFilter) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	pipelines, err := client.ListPipelines(ctx, appSlug, filter)
	if err != nil {
		return err
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(pipelines)
	}

	p := newPalette()
	rows := make([][]string, 0, len(pipelines))

	for i := range pipelines {
		pl := &pipelines[i]
		snap := pl.Snapshot()
		rows = append(rows, []string{
			pl.ID,
			p.statusWord(snap.Status),
			pl.Branch,
			formatTime(pl.TriggeredAt),
			snapshotDuration(snap),
		})
	}

	printTable(os.Stdout, []string{"PIPELINE", "STATUS", "BRANCH", "TRIGGERED", "DURATION"}, rows)

	return nil
}
