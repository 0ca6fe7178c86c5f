package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/bitrise"
)

// statusCodeByName maps the --status flag values to API status codes.
var statusCodeByName = map[string]int{
	"running": 0,
	"success": 1,
	"failed":  2,
	"aborted": 3,
}

func newBuildsCmd() *cobra.Command {
	var (
		appFlag  string
		status   string
		branch   string
		workflow string
		limit    int
		mine     bool
	)

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List builds for an app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			filter := bitrise.BuildFilter{
				Branch:   branch,
				Workflow: workflow,
				Limit:    limit,
			}

			if status != "" {
				code, ok := statusCodeByName[status]
				if !ok {
					return fmt.Errorf("%w: unknown status %q (running, success, failed, aborted)", errUsage, status)
				}

				filter.Status = &code
			}

			return runBuilds(cmd.Context(), appSlug, filter, mine)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: running, success, failed, aborted")
	cmd.Flags().StringVar(&branch, "branch", "", "filter by branch")
	cmd.Flags().StringVar(&workflow, "workflow", "", "filter by workflow")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of builds to list")
	cmd.Flags().BoolVar(&mine, "me", false, "only builds triggered by you")

	return cmd
}

func runBuilds(ctx context.Context, appSlug string, filter bitrise.BuildFilter, mine bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	builds, err := client.ListBuilds(ctx, appSlug, filter)
	if err != nil {
		return err
	}

	if mine {
		builds, err = filterMine(ctx, client, builds)
		if err != nil {
			return err
		}
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(builds)
	}

	p := newPalette()
	rows := make([][]string, 0, len(builds))

	for i := range builds {
		b := &builds[i]
		snap := b.Snapshot()
		rows = append(rows, []string{
			fmt.Sprintf("#%d", b.BuildNumber),
			p.statusWord(snap.Status),
			b.Branch,
			b.TriggeredWorkflow,
			formatTime(b.TriggeredAt),
			snapshotDuration(snap),
			b.Slug,
		})
	}

	printTable(os.Stdout, []string{"BUILD", "STATUS", "BRANCH", "WORKFLOW", "TRIGGERED", "DURATION", "SLUG"}, rows)

	return nil
}

// filterMine keeps builds triggered by the configured user, matching both
// manual triggers and GitHub webhook triggers.
func filterMine(ctx context.Context, client *bitrise.Client, builds []bitrise.Build) ([]bitrise.Build, error) {
	username := rootCfg.Defaults.Username
	if username == "" {
		me, err := client.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("--me requires a username: %w", err)
		}

		username = me.Username
	}

	githubUser := githubUsername()

	var mine []bitrise.Build
	for _, b := range builds {
		if matchesUser(b.TriggeredBy, username, githubUser) {
			mine = append(mine, b)
		}
	}

	return mine, nil
}

// githubUsername reads the user's GitHub handle from git config, for
// matching webhook-triggered builds named webhook-github/<user>.
// Returns empty when git or the config value is unavailable.
func githubUsername() string {
	out, err := exec.Command("git", "config", "--global", "github.user").Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(out))
}

// matchesUser reports whether a triggered_by value belongs to the user.
// Manual triggers match on a case-insensitive partial username match;
// webhook triggers match webhook-github/<github user> exactly.
func matchesUser(triggeredBy, username string, githubUser string) bool {
	if triggeredBy == "" {
		return false
	}

	lower := strings.ToLower(triggeredBy)

	if username != "" && strings.Contains(lower, strings.ToLower(username)) {
		return true
	}

	if githubUser != "" && lower == "webhook-github/"+strings.ToLower(githubUser) {
		return true
	}

	return false
}
