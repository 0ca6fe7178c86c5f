package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/bitrise"
	"github.com/reprise-cli/reprise/internal/config"
	"github.com/reprise-cli/reprise/internal/monitor"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// Effective configuration loaded by PersistentPreRunE, available to all
// subcommands after the root pre-run phase completes.
var (
	rootCfg     *config.Config
	rootCfgPath string
	rootLogger  *slog.Logger
)

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reprise",
		Short:   "Bitrise CI command-line client",
		Long:    "A fast command-line client for Bitrise: list, trigger, watch, and follow builds and pipelines.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initRoot()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newAppsCmd())
	cmd.AddCommand(newAppCmd())
	cmd.AddCommand(newBuildsCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newTriggerCmd())
	cmd.AddCommand(newAbortCmd())
	cmd.AddCommand(newArtifactsCmd())
	cmd.AddCommand(newPipelinesCmd())
	cmd.AddCommand(newPipelineCmd())
	cmd.AddCommand(newURLCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// initRoot builds the logger and loads configuration. A missing config
// file is fine; only commands that need the API token fail without it.
func initRoot() error {
	rootLogger = buildLogger()

	path := flagConfigPath
	if path == "" {
		var err error

		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	rootCfg = cfg
	rootCfgPath = path

	return nil
}

// buildLogger creates an slog.Logger configured by CLI flags.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// apiClient constructs the Bitrise API client, requiring a token.
func apiClient() (*bitrise.Client, error) {
	token, err := rootCfg.Token()
	if err != nil {
		return nil, err
	}

	return bitrise.NewClient(bitrise.DefaultBaseURL, defaultHTTPClient(), token, rootLogger), nil
}

// jsonOutput reports whether output should be JSON, from the flag or the
// configured default format.
func jsonOutput() bool {
	return flagJSON || rootCfg.Output.Format == "json"
}

// errUsage marks argument validation failures for exit-code mapping.
var errUsage = errors.New("invalid usage")

// exitOnError prints a user-friendly error message to stderr and exits
// with a sysexits-style code so scripts can distinguish failure classes.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}

// Exit codes per sysexits.h conventions.
const (
	exitGeneral     = 1
	exitUsage       = 2
	exitDataErr     = 65 // EX_DATAERR
	exitNotFound    = 66 // EX_NOINPUT
	exitUnavailable = 69 // EX_UNAVAILABLE
	exitNoPerm      = 77 // EX_NOPERM
	exitConfig      = 78 // EX_CONFIG
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, config.ErrNoToken), errors.Is(err, config.ErrNoDefaultApp):
		return exitConfig
	case errors.Is(err, monitor.ErrLogNotAvailable):
		return exitNotFound
	case errors.Is(err, bitrise.ErrUnauthorized), errors.Is(err, bitrise.ErrForbidden):
		return exitNoPerm
	case errors.Is(err, bitrise.ErrNotFound):
		return exitNotFound
	}

	var apiErr *bitrise.APIError
	if errors.As(err, &apiErr) {
		return exitUnavailable
	}

	return exitGeneral
}
