package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reprise-cli/reprise/internal/bitrise"
)

// downloadParallelism bounds concurrent artifact downloads.
const downloadParallelism = 4

func newArtifactsCmd() *cobra.Command {
	var (
		appFlag   string
		filter    string
		download  bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "artifacts <build-slug>",
		Short: "List or download build artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSlug, err := rootCfg.ResolveApp(appFlag)
			if err != nil {
				return err
			}

			return runArtifacts(cmd.Context(), appSlug, args[0], filter, download, outputDir)
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "app slug (defaults to the configured app)")
	cmd.Flags().StringVar(&filter, "filter", "", "only artifacts whose name matches this glob")
	cmd.Flags().BoolVar(&download, "download", false, "download the artifacts")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory to download into")

	return cmd
}

func runArtifacts(ctx context.Context, appSlug, buildSlug, filter string, download bool, outputDir string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	artifacts, err := client.ListArtifacts(ctx, appSlug, buildSlug)
	if err != nil {
		return err
	}

	if filter != "" {
		artifacts, err = filterArtifacts(artifacts, filter)
		if err != nil {
			return err
		}
	}

	if len(artifacts) == 0 {
		statusf("No artifacts found.\n")
		return nil
	}

	if download {
		return downloadArtifacts(ctx, client, appSlug, buildSlug, artifacts, outputDir)
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(artifacts)
	}

	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, []string{a.Title, a.ArtifactType, formatSize(a.FileSizeBytes), a.Slug})
	}

	printTable(os.Stdout, []string{"NAME", "TYPE", "SIZE", "SLUG"}, rows)

	return nil
}

// filterArtifacts keeps artifacts whose title matches the glob pattern.
func filterArtifacts(artifacts []bitrise.Artifact, pattern string) ([]bitrise.Artifact, error) {
	var kept []bitrise.Artifact

	for _, a := range artifacts {
		ok, err := path.Match(pattern, a.Title)
		if err != nil {
			return nil, fmt.Errorf("%w: bad --filter pattern %q: %v", errUsage, pattern, err)
		}

		if ok {
			kept = append(kept, a)
		}
	}

	return kept, nil
}

// downloadArtifacts fetches artifact details (for the expiring download
// URL) and downloads each file, a bounded number at a time.
func downloadArtifacts(ctx context.Context, client *bitrise.Client, appSlug, buildSlug string, artifacts []bitrise.Artifact, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %s: %w", outputDir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadParallelism)

	for _, a := range artifacts {
		g.Go(func() error {
			detail, err := client.GetArtifact(ctx, appSlug, buildSlug, a.Slug)
			if err != nil {
				return fmt.Errorf("fetching artifact %s: %w", a.Title, err)
			}

			if detail.ExpiringDownloadURL == "" {
				return fmt.Errorf("artifact %s has no download URL", a.Title)
			}

			dest := filepath.Join(outputDir, filepath.Base(a.Title))
			if err := client.DownloadArtifact(ctx, detail.ExpiringDownloadURL, dest); err != nil {
				return err
			}

			statusf("Downloaded: %s\n", dest)

			return nil
		})
	}

	return g.Wait()
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
