package bitrise

import (
	"context"

	"github.com/reprise-cli/reprise/internal/monitor"
)

// BuildJob adapts the build endpoints to the monitoring engine.
type BuildJob struct {
	Client *Client
}

func (j BuildJob) Snapshot(ctx context.Context, h monitor.Handle) (monitor.Snapshot, error) {
	build, err := j.Client.GetBuild(ctx, h.App, h.ID)
	if err != nil {
		return monitor.Snapshot{}, err
	}

	return build.Snapshot(), nil
}

func (j BuildJob) Log(ctx context.Context, h monitor.Handle) (string, error) {
	return j.Client.FullLog(ctx, h.App, h.ID)
}

// PipelineJob adapts the pipeline endpoints to the monitoring engine.
// Pipelines have no raw log; Follow is not offered for them.
type PipelineJob struct {
	Client *Client
}

func (j PipelineJob) Snapshot(ctx context.Context, h monitor.Handle) (monitor.Snapshot, error) {
	pipeline, err := j.Client.GetPipeline(ctx, h.App, h.ID)
	if err != nil {
		return monitor.Snapshot{}, err
	}

	return pipeline.Snapshot(), nil
}

func (j PipelineJob) Log(ctx context.Context, h monitor.Handle) (string, error) {
	return "", &APIError{StatusCode: 404, Message: "pipelines have no raw log", Err: ErrNotFound}
}
