package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/appcache"
	"github.com/reprise-cli/reprise/internal/bitrise"
	"github.com/reprise-cli/reprise/internal/config"
)

func newAppsCmd() *cobra.Command {
	var (
		limit   int
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List apps accessible with the configured token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApps(cmd.Context(), limit, noCache)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of apps to list")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the local app-list cache")

	return cmd
}

func runApps(ctx context.Context, limit int, noCache bool) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	apps, err := loadApps(ctx, client, limit, noCache)
	if err != nil {
		return err
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(apps)
	}

	rows := make([][]string, 0, len(apps))
	for _, app := range apps {
		disabled := ""
		if app.IsDisabled {
			disabled = "disabled"
		}

		rows = append(rows, []string{app.Title, app.Slug, app.ProjectType, app.Owner.Name, disabled})
	}

	printTable(os.Stdout, []string{"TITLE", "SLUG", "TYPE", "OWNER", ""}, rows)

	return nil
}

// loadApps serves the app list from the cache when fresh, refreshing it
// from the API otherwise. Cache failures degrade to a plain API fetch.
func loadApps(ctx context.Context, client *bitrise.Client, limit int, noCache bool) ([]bitrise.App, error) {
	cache := openAppCache()
	if cache != nil {
		defer cache.Close()
	}

	if cache != nil && !noCache {
		apps, fresh, err := cache.Apps(ctx)
		if err != nil {
			rootLogger.Warn("app cache read failed", slog.String("error", err.Error()))
		} else if fresh {
			rootLogger.Debug("serving apps from cache", slog.Int("count", len(apps)))
			return apps, nil
		}
	}

	apps, err := client.ListApps(ctx, limit)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.SetApps(ctx, apps); err != nil {
			rootLogger.Warn("app cache write failed", slog.String("error", err.Error()))
		}
	}

	return apps, nil
}

// openAppCache opens the cache database, returning nil when unavailable —
// the cache is an optimization, never a requirement.
func openAppCache() *appcache.Cache {
	dir, err := config.CacheDir()
	if err != nil {
		rootLogger.Warn("cache dir unavailable", slog.String("error", err.Error()))
		return nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		rootLogger.Warn("cache dir creation failed", slog.String("error", err.Error()))
		return nil
	}

	cache, err := appcache.Open(filepath.Join(dir, "apps.db"), rootLogger)
	if err != nil {
		rootLogger.Warn("app cache unavailable", slog.String("error", err.Error()))
		return nil
	}

	return cache
}

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage the default app",
	}

	cmd.AddCommand(newAppSetCmd())
	cmd.AddCommand(newAppShowCmd())

	return cmd
}

func newAppSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <slug-or-name>",
		Short: "Set the default app by slug or title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppSet(cmd.Context(), args[0])
		},
	}
}

func runAppSet(ctx context.Context, ref string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	app, err := resolveApp(ctx, client, ref)
	if err != nil {
		return err
	}

	rootCfg.Defaults.AppSlug = app.Slug
	rootCfg.Defaults.AppName = app.Title

	if err := rootCfg.Save(rootCfgPath); err != nil {
		return err
	}

	statusf("Default app set to: %s (%s)\n", app.Title, app.Slug)

	return nil
}

// resolveApp looks ref up as a slug first, then as an app title.
func resolveApp(ctx context.Context, client *bitrise.Client, ref string) (bitrise.App, error) {
	app, err := client.GetApp(ctx, ref)
	if err == nil {
		return app, nil
	}

	found, findErr := client.FindAppByName(ctx, ref)
	if findErr != nil {
		return bitrise.App{}, findErr
	}

	if found == nil {
		return bitrise.App{}, fmt.Errorf("app %q not found by slug or title: %w", ref, err)
	}

	return *found, nil
}

func newAppShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the default app",
		RunE: func(_ *cobra.Command, _ []string) error {
			if rootCfg.Defaults.AppSlug == "" {
				return config.ErrNoDefaultApp
			}

			if jsonOutput() {
				payload, err := json.MarshalIndent(rootCfg.Defaults, "", "  ")
				if err != nil {
					return err
				}

				fmt.Println(string(payload))

				return nil
			}

			fmt.Printf("%s (%s)\n", rootCfg.Defaults.AppName, rootCfg.Defaults.AppSlug)

			return nil
		},
	}
}
