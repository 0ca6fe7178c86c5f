package bitrise

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

type artifactListResponse struct {
	Data   []Artifact `json:"data"`
	Paging Paging     `json:"paging"`
}

type artifactResponse struct {
	Data Artifact `json:"data"`
}

// ListArtifacts returns the artifacts of a build.
func (c *Client) ListArtifacts(ctx context.Context, appSlug, buildSlug string) ([]Artifact, error) {
	var resp artifactListResponse
	if err := c.get(ctx, "/apps/"+appSlug+"/builds/"+buildSlug+"/artifacts", &resp); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// GetArtifact returns one artifact with its expiring download URL populated.
func (c *Client) GetArtifact(ctx context.Context, appSlug, buildSlug, artifactSlug string) (Artifact, error) {
	var resp artifactResponse
	if err := c.get(ctx, "/apps/"+appSlug+"/builds/"+buildSlug+"/artifacts/"+artifactSlug, &resp); err != nil {
		return Artifact{}, err
	}

	return resp.Data, nil
}

// DownloadArtifact streams the artifact at downloadURL to path. The URL
// must pass the download-host allow-list.
func (c *Client) DownloadArtifact(ctx context.Context, downloadURL, path string) error {
	if err := c.validateDownloadURL(downloadURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bitrise: downloading artifact: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, http.MethodGet, downloadURL); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)

		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}
