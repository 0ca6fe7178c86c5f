package bitrise

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type buildListResponse struct {
	Data   []Build `json:"data"`
	Paging Paging  `json:"paging"`
}

type buildResponse struct {
	Data Build `json:"data"`
}

type triggerResponse struct {
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	BuildSlug string `json:"build_slug,omitempty"`
}

// BuildFilter narrows ListBuilds results. Zero values mean "no filter".
type BuildFilter struct {
	Status   *int // API status code
	Branch   string
	Workflow string
	Limit    int
}

// TriggerParams describes a build to trigger.
type TriggerParams struct {
	Branch        string
	WorkflowID    string
	CommitMessage string
	Environments  map[string]string
}

// environment is the API's shape for one injected env var.
type environment struct {
	MappedTo string `json:"mapped_to"`
	Value    string `json:"value"`
	IsExpand bool   `json:"is_expand"`
}

// ListBuilds returns builds for the app, newest first, applying the filter.
func (c *Client) ListBuilds(ctx context.Context, appSlug string, filter BuildFilter) ([]Build, error) {
	q := url.Values{}

	if filter.Status != nil {
		q.Set("status", strconv.Itoa(*filter.Status))
	}

	if filter.Branch != "" {
		q.Set("branch", filter.Branch)
	}

	if filter.Workflow != "" {
		q.Set("workflow", filter.Workflow)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	q.Set("limit", strconv.Itoa(limit))

	var resp buildListResponse
	if err := c.get(ctx, "/apps/"+appSlug+"/builds?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// GetBuild returns one build.
func (c *Client) GetBuild(ctx context.Context, appSlug, buildSlug string) (Build, error) {
	var resp buildResponse
	if err := c.get(ctx, "/apps/"+appSlug+"/builds/"+buildSlug, &resp); err != nil {
		return Build{}, err
	}

	return resp.Data, nil
}

// GetBuildLog returns the build-log endpoint response (chunks plus an
// optional expiring raw-log URL).
func (c *Client) GetBuildLog(ctx context.Context, appSlug, buildSlug string) (LogResponse, error) {
	var resp LogResponse
	if err := c.get(ctx, "/apps/"+appSlug+"/builds/"+buildSlug+"/log", &resp); err != nil {
		return LogResponse{}, err
	}

	return resp, nil
}

// FullLog returns the build's complete log text. When the API provides an
// expiring raw-log URL it is fetched (subject to the host allow-list);
// otherwise the log chunks are concatenated.
func (c *Client) FullLog(ctx context.Context, appSlug, buildSlug string) (string, error) {
	resp, err := c.GetBuildLog(ctx, appSlug, buildSlug)
	if err != nil {
		return "", err
	}

	if resp.ExpiringRawLogURL != "" {
		return c.getRaw(ctx, resp.ExpiringRawLogURL)
	}

	var sb strings.Builder
	for _, chunk := range resp.LogChunks {
		sb.WriteString(chunk.Chunk)
	}

	return sb.String(), nil
}

// TriggerBuild starts a new build and returns its full details.
func (c *Client) TriggerBuild(ctx context.Context, appSlug string, params TriggerParams) (Build, error) {
	buildParams := map[string]any{
		"workflow_id": params.WorkflowID,
	}

	if params.Branch != "" {
		buildParams["branch"] = params.Branch
	}

	if params.CommitMessage != "" {
		buildParams["commit_message"] = params.CommitMessage
	}

	if len(params.Environments) > 0 {
		buildParams["environments"] = envList(params.Environments)
	}

	body := map[string]any{
		"hook_info":    map[string]any{"type": "bitrise"},
		"build_params": buildParams,
	}

	var resp triggerResponse
	if err := c.post(ctx, "/apps/"+appSlug+"/builds", body, &resp); err != nil {
		return Build{}, err
	}

	if resp.BuildSlug == "" {
		return Build{}, fmt.Errorf("bitrise: build triggered but no slug returned: %s", resp.Message)
	}

	return c.GetBuild(ctx, appSlug, resp.BuildSlug)
}

// AbortBuild aborts a running build. reason may be empty.
func (c *Client) AbortBuild(ctx context.Context, appSlug, buildSlug, reason string) error {
	if reason == "" {
		reason = "Aborted via reprise CLI"
	}

	body := map[string]any{
		"abort_reason":       reason,
		"abort_with_success": false,
		"skip_notifications": false,
	}

	return c.post(ctx, "/apps/"+appSlug+"/builds/"+buildSlug+"/abort", body, nil)
}

func envList(envs map[string]string) []environment {
	list := make([]environment, 0, len(envs))
	for k, v := range envs {
		list = append(list, environment{MappedTo: k, Value: v, IsExpand: true})
	}

	return list
}
