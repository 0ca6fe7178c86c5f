package bitrise

import (
	"fmt"
	"time"

	"github.com/reprise-cli/reprise/internal/monitor"
)

// Numeric status codes used by the Bitrise API for builds and pipelines.
const (
	statusCodeRunning        = 0
	statusCodeSuccess        = 1
	statusCodeFailed         = 2
	statusCodeAborted        = 3
	statusCodeAbortedSuccess = 4
)

// StatusFromCode maps an API status code to the engine's status enum.
// Codes outside the known set map to Unknown, which is terminal.
func StatusFromCode(code int) monitor.Status {
	switch code {
	case statusCodeRunning:
		return monitor.StatusRunning
	case statusCodeSuccess:
		return monitor.StatusSuccess
	case statusCodeFailed:
		return monitor.StatusFailed
	case statusCodeAborted, statusCodeAbortedSuccess:
		return monitor.StatusAborted
	default:
		return monitor.StatusUnknown
	}
}

// StatusLabel returns the human label for an API status code.
func StatusLabel(code int) string {
	switch code {
	case statusCodeRunning:
		return "running"
	case statusCodeSuccess:
		return "success"
	case statusCodeFailed:
		return "failed"
	case statusCodeAborted:
		return "aborted"
	case statusCodeAbortedSuccess:
		return "aborted-success"
	default:
		return "unknown"
	}
}

// Paging carries the API's pagination metadata.
type Paging struct {
	TotalItemCount int64  `json:"total_item_count"`
	PageItemLimit  int64  `json:"page_item_limit"`
	Next           string `json:"next,omitempty"`
}

// Owner identifies the account owning an app.
type Owner struct {
	AccountType string `json:"account_type"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
}

// App is a Bitrise application.
type App struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	ProjectType string `json:"project_type,omitempty"`
	Provider    string `json:"provider,omitempty"`
	RepoOwner   string `json:"repo_owner,omitempty"`
	RepoSlug    string `json:"repo_slug,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`
	IsDisabled  bool   `json:"is_disabled"`
	Status      int    `json:"status"`
	IsPublic    bool   `json:"isPublic"`
	Owner       Owner  `json:"owner"`
}

// Build is a single Bitrise build.
type Build struct {
	Slug                    string     `json:"slug"`
	TriggeredAt             time.Time  `json:"triggered_at"`
	StartedOnWorkerAt       *time.Time `json:"started_on_worker_at,omitempty"`
	FinishedAt              *time.Time `json:"finished_at,omitempty"`
	Status                  int        `json:"status"`
	StatusText              string     `json:"status_text"`
	AbortReason             string     `json:"abort_reason,omitempty"`
	Branch                  string     `json:"branch"`
	BuildNumber             int64      `json:"build_number"`
	CommitHash              string     `json:"commit_hash,omitempty"`
	CommitMessage           string     `json:"commit_message,omitempty"`
	Tag                     string     `json:"tag,omitempty"`
	TriggeredWorkflow       string     `json:"triggered_workflow"`
	TriggeredBy             string     `json:"triggered_by,omitempty"`
	StackIdentifier         string     `json:"stack_identifier,omitempty"`
	MachineTypeID           string     `json:"machine_type_id,omitempty"`
	PullRequestID           int64      `json:"pull_request_id,omitempty"`
	PullRequestTargetBranch string     `json:"pull_request_target_branch,omitempty"`
	CreditCost              int        `json:"credit_cost,omitempty"`
}

// IsRunning reports whether the build has not yet reached a terminal state.
func (b *Build) IsRunning() bool {
	return StatusFromCode(b.Status) == monitor.StatusRunning
}

// Snapshot converts the build into the engine's snapshot form.
func (b *Build) Snapshot() monitor.Snapshot {
	snap := monitor.Snapshot{
		Status:      StatusFromCode(b.Status),
		Label:       StatusLabel(b.Status),
		Ref:         fmt.Sprintf("#%d", b.BuildNumber),
		TriggeredAt: b.TriggeredAt,
		AbortReason: b.AbortReason,
	}

	if b.StartedOnWorkerAt != nil {
		snap.StartedAt = *b.StartedOnWorkerAt
	}

	if b.FinishedAt != nil {
		snap.FinishedAt = *b.FinishedAt
	}

	return snap
}

// WebURL returns the build's page on the Bitrise site.
func (b *Build) WebURL() string {
	return "https://app.bitrise.io/build/" + b.Slug
}

// PipelineWorkflow is one workflow stage inside a pipeline.
type PipelineWorkflow struct {
	Name       string `json:"name"`
	Status     int    `json:"status"`
	StatusText string `json:"status_text,omitempty"`
}

// Pipeline is a Bitrise pipeline run.
type Pipeline struct {
	ID          string             `json:"id"`
	Status      int                `json:"status"`
	StatusText  string             `json:"status_text,omitempty"`
	Branch      string             `json:"branch,omitempty"`
	TriggeredAt time.Time          `json:"triggered_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	AbortReason string             `json:"abort_reason,omitempty"`
	TriggeredBy string             `json:"triggered_by,omitempty"`
	Workflows   []PipelineWorkflow `json:"workflows,omitempty"`
}

// IsRunning reports whether the pipeline has not yet reached a terminal state.
func (p *Pipeline) IsRunning() bool {
	return StatusFromCode(p.Status) == monitor.StatusRunning
}

// Snapshot converts the pipeline into the engine's snapshot form,
// including per-workflow stage statuses for watch-mode display.
func (p *Pipeline) Snapshot() monitor.Snapshot {
	snap := monitor.Snapshot{
		Status:      StatusFromCode(p.Status),
		Label:       StatusLabel(p.Status),
		Ref:         p.ID,
		TriggeredAt: p.TriggeredAt,
		AbortReason: p.AbortReason,
	}

	if p.StartedAt != nil {
		snap.StartedAt = *p.StartedAt
	}

	if p.FinishedAt != nil {
		snap.FinishedAt = *p.FinishedAt
	}

	for _, wf := range p.Workflows {
		snap.Stages = append(snap.Stages, monitor.Stage{
			Name:   wf.Name,
			Status: StatusFromCode(wf.Status),
		})
	}

	return snap
}

// WebURL returns the pipeline's page on the Bitrise site.
func (p *Pipeline) WebURL(appSlug string) string {
	return "https://app.bitrise.io/app/" + appSlug + "/pipelines/" + p.ID
}

// Artifact is a build artifact.
type Artifact struct {
	Slug                string `json:"slug"`
	Title               string `json:"title"`
	ArtifactType        string `json:"artifact_type,omitempty"`
	FileSizeBytes       int64  `json:"file_size_bytes,omitempty"`
	IsPublicPageEnabled bool   `json:"is_public_page_enabled"`
	ExpiringDownloadURL string `json:"expiring_download_url,omitempty"`
}

// LogChunk is one chunk of a build log as served by the log endpoint.
type LogChunk struct {
	Chunk    string `json:"chunk"`
	Position int64  `json:"position"`
}

// LogResponse is the build-log endpoint response.
type LogResponse struct {
	LogChunks         []LogChunk `json:"log_chunks"`
	ExpiringRawLogURL string     `json:"expiring_raw_log_url,omitempty"`
	IsArchived        bool       `json:"is_archived"`
}

// User is the authenticated account.
type User struct {
	Username string `json:"username"`
	Slug     string `json:"slug"`
	Email    string `json:"email,omitempty"`
}
