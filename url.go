package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/bitrise"
	"github.com/reprise-cli/reprise/internal/monitor"
)

// urlOptions collects the url command's flags. The command either parses
// a pasted Bitrise web URL and acts on it, or generates a URL from one of
// the --build/--app-slug/--pipeline flags.
type urlOptions struct {
	genBuild    string
	genApp      string
	genPipeline string
	pipelineApp string

	browser    bool
	setDefault bool
	logs       bool
	follow     bool
	artifacts  bool
	download   string
	abort      bool
	reason     string
	retry      bool
	wait       bool
	watch      bool
	yes        bool
	interval   int
	withNotify bool
}

func newURLCmd() *cobra.Command {
	var opts urlOptions

	cmd := &cobra.Command{
		Use:   "url [bitrise-url]",
		Short: "Act on a pasted Bitrise URL, or generate one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.genBuild != "" || opts.genApp != "" || opts.genPipeline != "" {
				return runURLGenerate(opts)
			}

			if len(args) == 0 {
				return fmt.Errorf("%w: a URL or one of --build, --app-slug, --pipeline is required", errUsage)
			}

			return runURL(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.genBuild, "build", "", "generate a URL for this build slug")
	cmd.Flags().StringVar(&opts.genApp, "app-slug", "", "generate a URL for this app slug")
	cmd.Flags().StringVar(&opts.genPipeline, "pipeline", "", "generate a URL for this pipeline ID (requires --app-slug)")

	cmd.Flags().BoolVar(&opts.browser, "open", false, "open the URL in the default browser")
	cmd.Flags().BoolVar(&opts.setDefault, "set-default", false, "set the app as the default (app URLs only)")
	cmd.Flags().BoolVar(&opts.logs, "logs", false, "dump the full build log (build URLs only)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "stream the live build log (build URLs only)")
	cmd.Flags().BoolVar(&opts.artifacts, "artifacts", false, "list build artifacts (build URLs only)")
	cmd.Flags().StringVar(&opts.download, "download", "", "download all artifacts into DIR (build URLs only)")
	cmd.Flags().BoolVar(&opts.abort, "abort", false, "abort the build (build URLs only)")
	cmd.Flags().StringVar(&opts.reason, "reason", "", "abort reason, with --abort")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "re-trigger the build with the same parameters (build URLs only)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "with --retry, wait for the new build to complete")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "watch a running build or pipeline until it completes")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip confirmation prompts")
	cmd.Flags().IntVar(&opts.interval, "interval", defaultPollInterval, "poll interval in seconds")
	cmd.Flags().BoolVar(&opts.withNotify, "notify", false, "send a desktop notification on completion")

	return cmd
}

// runURLGenerate builds a Bitrise web URL from flags without touching the
// API, so it works without a token.
func runURLGenerate(opts urlOptions) error {
	var kind, webURL string

	switch {
	case opts.genBuild != "":
		kind = "build"
		webURL = "https://app.bitrise.io/build/" + opts.genBuild

	case opts.genPipeline != "":
		if opts.genApp == "" {
			return fmt.Errorf("%w: --app-slug is required when generating pipeline URLs", errUsage)
		}

		kind = "pipeline"
		webURL = "https://app.bitrise.io/app/" + opts.genApp + "/pipelines/" + opts.genPipeline

	default:
		kind = "app"
		webURL = "https://app.bitrise.io/app/" + opts.genApp
	}

	if opts.browser {
		if err := openInBrowser(webURL); err != nil {
			return err
		}

		statusf("-> Opened in browser: %s\n", webURL)

		return nil
	}

	if jsonOutput() {
		payload, _ := json.MarshalIndent(map[string]string{"type": kind, "url": webURL}, "", "  ")
		fmt.Println(string(payload))

		return nil
	}

	fmt.Println(webURL)

	return nil
}

func runURL(ctx context.Context, raw string, opts urlOptions) error {
	parsed, err := bitrise.ParseURL(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if err := validateURLFlags(parsed, opts); err != nil {
		return err
	}

	if opts.browser {
		if err := openInBrowser(raw); err != nil {
			return err
		}

		statusf("-> Opened in browser: %s\n", raw)
	}

	switch parsed.Kind {
	case bitrise.URLBuild:
		return handleBuildURL(ctx, parsed.BuildSlug, opts)
	case bitrise.URLApp:
		return handleAppURL(ctx, parsed.AppSlug, opts)
	default:
		return handlePipelineURL(ctx, parsed.AppSlug, parsed.PipelineID, opts)
	}
}

// validateURLFlags rejects flag combinations that make no sense for the
// URL's type, before any API call is made.
func validateURLFlags(parsed bitrise.ParsedURL, opts urlOptions) error {
	buildOnly := func(flag string) error {
		return fmt.Errorf("%w: %s is only valid for build URLs", errUsage, flag)
	}

	switch parsed.Kind {
	case bitrise.URLBuild:
		if opts.setDefault {
			return fmt.Errorf("%w: --set-default is only valid for app URLs", errUsage)
		}

	case bitrise.URLApp, bitrise.URLPipeline:
		if opts.logs {
			return buildOnly("--logs")
		}

		if opts.follow {
			return buildOnly("--follow")
		}

		if opts.artifacts {
			return buildOnly("--artifacts")
		}

		if opts.download != "" {
			return buildOnly("--download")
		}

		if opts.abort {
			return buildOnly("--abort")
		}

		if opts.retry {
			return buildOnly("--retry")
		}

		if parsed.Kind == bitrise.URLPipeline && opts.setDefault {
			return fmt.Errorf("%w: --set-default is only valid for app URLs", errUsage)
		}
	}

	return nil
}

func handleBuildURL(ctx context.Context, buildSlug string, opts urlOptions) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	build, appSlug, err := findBuildWithApp(ctx, client, buildSlug)
	if err != nil {
		return err
	}

	switch {
	case opts.abort:
		return abortBuildFromURL(ctx, client, appSlug, buildSlug, build, opts)

	case opts.retry:
		return retryBuildFromURL(ctx, client, appSlug, build, opts)

	case opts.download != "":
		return runArtifacts(ctx, appSlug, buildSlug, "", true, opts.download)

	case opts.logs:
		return runLog(ctx, appSlug, buildSlug, 0, "")

	case opts.follow:
		return runLogFollow(ctx, appSlug, buildSlug, opts.interval, opts.withNotify)

	case opts.artifacts:
		return runArtifacts(ctx, appSlug, buildSlug, "", false, "")

	case opts.watch && build.IsRunning():
		m := newMonitor(bitrise.BuildJob{Client: client}, opts.withNotify)
		h := monitor.Handle{App: appSlug, ID: buildSlug}
		pc := newPollContext(opts.interval)

		return runWatch(ctx, m, h, pc, "build", build.WebURL())

	default:
		return printBuild(build)
	}
}

// findBuildWithApp locates the app a bare build URL belongs to: the
// configured default app is tried first, then every accessible app.
func findBuildWithApp(ctx context.Context, client *bitrise.Client, buildSlug string) (*bitrise.Build, string, error) {
	if slug := rootCfg.Defaults.AppSlug; slug != "" {
		if build, err := client.GetBuild(ctx, slug, buildSlug); err == nil {
			return &build, slug, nil
		}
	}

	apps, err := client.ListApps(ctx, 50)
	if err != nil {
		return nil, "", err
	}

	for _, app := range apps {
		if build, err := client.GetBuild(ctx, app.Slug, buildSlug); err == nil {
			return &build, app.Slug, nil
		}
	}

	return nil, "", fmt.Errorf("build %s not found in any accessible app: %w (try 'reprise app set')",
		buildSlug, bitrise.ErrNotFound)
}

func abortBuildFromURL(ctx context.Context, client *bitrise.Client, appSlug, buildSlug string, build *bitrise.Build, opts urlOptions) error {
	if !build.IsRunning() {
		statusf("! Build #%d is not running (status: %s)\n", build.BuildNumber, build.StatusText)

		return nil
	}

	if !opts.yes && !jsonOutput() {
		if !confirm(fmt.Sprintf("Abort build #%d on branch %q?", build.BuildNumber, build.Branch)) {
			statusf("Aborted.\n")

			return nil
		}
	}

	if err := client.AbortBuild(ctx, appSlug, buildSlug, opts.reason); err != nil {
		return err
	}

	statusf("✓ Build #%d aborted\n  Workflow: %s\n  Branch:   %s\n",
		build.BuildNumber, build.TriggeredWorkflow, build.Branch)

	if opts.reason != "" {
		statusf("  Reason:   %s\n", opts.reason)
	}

	return nil
}

func retryBuildFromURL(ctx context.Context, client *bitrise.Client, appSlug string, build *bitrise.Build, opts urlOptions) error {
	params := bitrise.TriggerParams{
		Branch:        build.Branch,
		WorkflowID:    build.TriggeredWorkflow,
		CommitMessage: build.CommitMessage,
	}

	newBuild, err := client.TriggerBuild(ctx, appSlug, params)
	if err != nil {
		return err
	}

	statusf("✓ Triggered rebuild of #%d as #%d\n  View at: %s\n",
		build.BuildNumber, newBuild.BuildNumber, newBuild.WebURL())

	if !opts.wait {
		if jsonOutput() {
			return printTriggered(&newBuild)
		}

		return nil
	}

	m := newMonitor(bitrise.BuildJob{Client: client}, opts.withNotify)
	h := monitor.Handle{App: appSlug, ID: newBuild.Slug}
	pc := newPollContext(opts.interval)

	return runWatch(ctx, m, h, pc, "build", newBuild.WebURL())
}

func handleAppURL(ctx context.Context, appSlug string, opts urlOptions) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	app, err := client.GetApp(ctx, appSlug)
	if err != nil {
		return err
	}

	if opts.setDefault {
		rootCfg.Defaults.AppSlug = app.Slug
		rootCfg.Defaults.AppName = app.Title

		if err := rootCfg.Save(rootCfgPath); err != nil {
			return err
		}

		statusf("Default app set to: %s (%s)\n", app.Title, app.Slug)
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(app)
	}

	p := newPalette()

	fmt.Printf("%s (%s)\n", p.bold(app.Title), app.Slug)

	if app.ProjectType != "" {
		fmt.Printf("  Type:  %s\n", app.ProjectType)
	}

	if app.RepoURL != "" {
		fmt.Printf("  Repo:  %s\n", app.RepoURL)
	}

	fmt.Printf("  Owner: %s\n", app.Owner.Name)

	return nil
}

func handlePipelineURL(ctx context.Context, appSlug, pipelineID string, opts urlOptions) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	pipeline, err := client.GetPipeline(ctx, appSlug, pipelineID)
	if err != nil {
		return err
	}

	if opts.watch && pipeline.IsRunning() {
		m := newMonitor(bitrise.PipelineJob{Client: client}, opts.withNotify)
		h := monitor.Handle{App: appSlug, ID: pipelineID}
		pc := newPollContext(opts.interval)

		return runWatch(ctx, m, h, pc, "pipeline", pipeline.WebURL(appSlug))
	}

	return printPipeline(&pipeline, appSlug)
}

// confirm asks a yes/no question on stderr and reads the answer from stdin.
func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "? %s [y/N] ", prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	return isAffirmative(line)
}

// isAffirmative reports whether a prompt answer means yes. The line is
// trimmed first so CRLF input behaves the same as LF.
func isAffirmative(line string) bool {
	switch strings.TrimSpace(line) {
	case "y", "Y", "yes", "YES":
		return true
	default:
		return false
	}
}

// openInBrowser launches the platform's URL opener.
func openInBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	return nil
}
