package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/config"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local app-list cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show cache contents and freshness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheStatus(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClear(cmd.Context())
		},
	})

	return cmd
}

func runCacheStatus(ctx context.Context) error {
	dir, err := config.CacheDir()
	if err != nil {
		return err
	}

	cache := openAppCache()
	if cache == nil {
		return fmt.Errorf("cache unavailable at %s", dir)
	}
	defer cache.Close()

	st, err := cache.Stat(ctx)
	if err != nil {
		return err
	}

	if jsonOutput() {
		payload := struct {
			CacheDir string `json:"cache_dir"`
			Apps     int    `json:"apps"`
			CachedAt string `json:"cached_at,omitempty"`
			Fresh    bool   `json:"fresh"`
		}{
			CacheDir: dir,
			Apps:     st.Apps,
			Fresh:    st.Fresh,
		}

		if !st.CachedAt.IsZero() {
			payload.CachedAt = st.CachedAt.Format(time.RFC3339)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(payload)
	}

	p := newPalette()

	fmt.Println(p.bold("Cache Status"))
	fmt.Printf("Location: %s\n\n", filepath.Join(dir, "apps.db"))
	fmt.Println("Apps:")

	if st.CachedAt.IsZero() {
		fmt.Printf("  %s\n", p.dim("Not cached"))

		return nil
	}

	fmt.Printf("  Entries: %d\n", st.Apps)

	age := formatDuration(time.Since(st.CachedAt))
	if st.Fresh {
		fmt.Printf("  Age:     %s %s\n", age, p.green("(fresh)"))
	} else {
		fmt.Printf("  Age:     %s %s\n", age, p.yellow("(stale)"))
	}

	return nil
}

func runCacheClear(ctx context.Context) error {
	cache := openAppCache()
	if cache == nil {
		statusf("Nothing to clear.\n")

		return nil
	}
	defer cache.Close()

	if err := cache.Clear(ctx); err != nil {
		return err
	}

	statusf("✓ Cache cleared\n")

	return nil
}
