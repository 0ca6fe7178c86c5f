package bitrise

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

type pipelineListResponse struct {
	Data   []Pipeline `json:"data"`
	Paging Paging     `json:"paging"`
}

type pipelineTriggerResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// PipelineFilter narrows ListPipelines results.
type PipelineFilter struct {
	Branch string
	Limit  int
}

// PipelineTriggerParams describes a pipeline to trigger.
type PipelineTriggerParams struct {
	PipelineID   string
	Branch       string
	Environments map[string]string
}

// ListPipelines returns pipeline runs for the app, newest first.
func (c *Client) ListPipelines(ctx context.Context, appSlug string, filter PipelineFilter) ([]Pipeline, error) {
	q := url.Values{}

	if filter.Branch != "" {
		q.Set("branch", filter.Branch)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	q.Set("limit", strconv.Itoa(limit))

	var resp pipelineListResponse
	if err := c.get(ctx, "/apps/"+appSlug+"/pipelines?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// GetPipeline returns one pipeline run. The endpoint serves either a
// wrapped {"data": ...} envelope or a bare pipeline object depending on
// API version; both shapes are accepted.
func (c *Client) GetPipeline(ctx context.Context, appSlug, pipelineID string) (Pipeline, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/apps/"+appSlug+"/pipelines/"+pipelineID, &raw); err != nil {
		return Pipeline{}, err
	}

	var wrapped struct {
		Data *Pipeline `json:"data"`
	}

	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return *wrapped.Data, nil
	}

	var pipeline Pipeline
	if err := json.Unmarshal(raw, &pipeline); err != nil {
		return Pipeline{}, fmt.Errorf("bitrise: decoding pipeline response: %w", err)
	}

	return pipeline, nil
}

// TriggerPipeline starts a new pipeline run and returns its full details.
func (c *Client) TriggerPipeline(ctx context.Context, appSlug string, params PipelineTriggerParams) (Pipeline, error) {
	buildParams := map[string]any{
		"pipeline_id": params.PipelineID,
	}

	if params.Branch != "" {
		buildParams["branch"] = params.Branch
	}

	if len(params.Environments) > 0 {
		buildParams["environments"] = envList(params.Environments)
	}

	body := map[string]any{
		"hook_info":    map[string]any{"type": "bitrise"},
		"build_params": buildParams,
	}

	var resp pipelineTriggerResponse
	if err := c.post(ctx, "/apps/"+appSlug+"/pipelines", body, &resp); err != nil {
		return Pipeline{}, err
	}

	if resp.ID == "" {
		return Pipeline{}, fmt.Errorf("bitrise: pipeline triggered but no ID returned: %s", resp.Message)
	}

	return c.GetPipeline(ctx, appSlug, resp.ID)
}

// AbortPipeline aborts a running pipeline. reason may be empty.
func (c *Client) AbortPipeline(ctx context.Context, appSlug, pipelineID, reason string) error {
	if reason == "" {
		reason = "Aborted via reprise CLI"
	}

	body := map[string]any{
		"abort_reason":       reason,
		"abort_with_success": false,
		"skip_notifications": false,
	}

	return c.post(ctx, "/apps/"+appSlug+"/pipelines/"+pipelineID+"/abort", body, nil)
}

// RebuildPipeline re-runs a pipeline. With partial set, only failed
// workflows are re-run. Returns the new run when the API reports one,
// otherwise the original pipeline refreshed.
func (c *Client) RebuildPipeline(ctx context.Context, appSlug, pipelineID string, partial bool) (Pipeline, error) {
	body := map[string]any{"partial": partial}

	var resp pipelineTriggerResponse
	if err := c.post(ctx, "/apps/"+appSlug+"/pipelines/"+pipelineID+"/rebuild", body, &resp); err != nil {
		return Pipeline{}, err
	}

	id := resp.ID
	if id == "" {
		id = pipelineID
	}

	return c.GetPipeline(ctx, appSlug, id)
}
