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

func newTriggerCmd() *cobra.Command {
	var (
		appFlag    string
		workflow   string
		branch     string
		message    string
		envs       []string
		wait       bool
		interval   int
		withNotify bool
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a new build",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			envMap, err := parseEnvFlags(envs)
			if err != nil {
				return err
			}

			params := bitrise.TriggerParams{
				WorkflowID:    workflow,
				Branch:        branch,
				CommitMessage: message,
				Environments:  envMap,
			}

			return runTrigger(cmd.Context(), appSlug, params, wait, interval, withNotify)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVarP(&workflow, "workflow", "w", "", "workflow to run (required)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to build")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message to attach")
	cmd.Flags().StringArrayVarP(&envs, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the build completes")
	cmd.Flags().IntVar(&interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&withNotify, "notify", false, "send a desktop notification on completion")

	_ = cmd.MarkFlagRequired("workflow")

	return cmd
}

func parseEnvFlags(envs []string) (map[string]string, error) {
	if len(envs) == 0 {
		return nil, nil
	}

	m := make(map[string]string, len(envs))

	for _, kv := range envs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --env expects KEY=VALUE, got %q", errUsage, kv)
		}

		m[key] = value
	}

	return m, nil
}

func runTrigger(ctx context.Context, appSlug string, params bitrise.TriggerParams, wait bool, interval int, withNotify bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	if !wait {
		build, err := client.TriggerBuild(ctx, appSlug, params)
		if err != nil {
			return err
		}

		return printTriggered(&build)
	}

	m := newMonitor(bitrise.BuildJob{Client: client}, withNotify)
	pc := newPollContext(interval)

	var triggered bitrise.Build

	h, out, err := m.TriggerAndWait(ctx, func(ctx context.Context) (monitor.Handle, error) {
		build, err := client.TriggerBuild(ctx, appSlug, params)
		if err != nil {
			return monitor.Handle{}, err
		}

		triggered = build

		if err := printTriggered(&build); err != nil {
			return monitor.Handle{}, err
		}

		statusf("\n-> Waiting for build to complete (Ctrl+C to stop)...\n")

		return monitor.Handle{App: appSlug, ID: build.Slug}, nil
	}, pc)
	if err != nil {
		if h.ID != "" {
			return monitorFailed(err, "build", triggered.WebURL())
		}

		return err
	}

	printOutcome(out, "build", triggered.WebURL())

	return nil
}

func printTriggered(b *bitrise.Build) error {
	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(b)
	}

	p := newPalette()

	statusf("%s Build %s triggered\n", p.green("✓"), p.bold(fmt.Sprintf("#%d", b.BuildNumber)))
	statusf("  Slug:     %s\n", b.Slug)
	statusf("  Branch:   %s\n", b.Branch)
	statusf("  Workflow: %s\n", b.TriggeredWorkflow)
	statusf("\nView at: %s\n", b.WebURL())

	return nil
}
