package bitrise

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reprise-cli/reprise/internal/monitor"
)

// testClient returns a client pointed at the test server, with the
// download allow-list opened up for localhost.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c := NewClient(srv.URL, srv.Client(), "test-token", nil)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c.downloadHosts = []string{u.Hostname()}

	return c
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotUA, gotRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-ID")

		fmt.Fprint(w, `{"data":{"username":"alice","slug":"user-1"}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	user, err := c.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "test-token", gotAuth)
	assert.Equal(t, "reprise/0.1", gotUA)
	assert.NotEmpty(t, gotRequestID)
}

func TestClientRequestIDStableWithinInvocation(t *testing.T) {
	var ids []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-ID"))
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	_, err = c.Me(context.Background())
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		transient bool
	}{
		{http.StatusBadRequest, ErrBadRequest, false},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusForbidden, ErrForbidden, false},
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusInternalServerError, ErrServerError, true},
		{http.StatusBadGateway, ErrServerError, true},
		{http.StatusServiceUnavailable, ErrServerError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := testClient(t, srv)

			_, err := c.GetBuild(context.Background(), "app", "build")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.transient, apiErr.Transient())
			assert.Equal(t, tt.transient, monitor.IsTransient(err))
		})
	}
}

func TestGetBuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/my-app/builds/abc123", r.URL.Path)

		fmt.Fprint(w, `{"data":{
			"slug":"abc123","status":1,"status_text":"success",
			"branch":"main","build_number":142,
			"triggered_workflow":"primary",
			"triggered_at":"2026-03-01T12:00:00Z"
		}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	build, err := c.GetBuild(context.Background(), "my-app", "abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", build.Slug)
	assert.Equal(t, int64(142), build.BuildNumber)
	assert.False(t, build.IsRunning())
	assert.Equal(t, monitor.StatusSuccess, build.Snapshot().Status)
	assert.Equal(t, "#142", build.Snapshot().Ref)
}

func TestListBuildsQuery(t *testing.T) {
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"data":[{"slug":"b1","status":0}],"paging":{"total_item_count":1}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	status := 0
	builds, err := c.ListBuilds(context.Background(), "my-app", BuildFilter{
		Status: &status,
		Branch: "main",
		Limit:  10,
	})
	require.NoError(t, err)

	require.Len(t, builds, 1)
	assert.Equal(t, "0", gotQuery.Get("status"))
	assert.Equal(t, "main", gotQuery.Get("branch"))
	assert.Equal(t, "10", gotQuery.Get("limit"))
}

func TestFullLogFromRawURL(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/raw", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "line 1\nline 2\n")
	})
	mux.HandleFunc("/apps/my-app/builds/b1/log", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"expiring_raw_log_url": srv.URL + "/raw",
			"is_archived":          true,
		})
	})

	c := testClient(t, srv)

	text, err := c.FullLog(context.Background(), "my-app", "b1")
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", text)
}

func TestFullLogFromChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"log_chunks":[
			{"chunk":"first ","position":0},
			{"chunk":"second","position":1}
		],"is_archived":false}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	text, err := c.FullLog(context.Background(), "my-app", "b1")
	require.NoError(t, err)
	assert.Equal(t, "first second", text)
}

func TestFullLogRejectsUntrustedRawHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"expiring_raw_log_url":"https://evil.example.com/steal","is_archived":true}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	_, err := c.FullLog(context.Background(), "my-app", "b1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not trusted")
}

func TestValidateDownloadURL(t *testing.T) {
	c := NewClient("", nil, "tok", nil)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"exact allowed host", "https://bitrise.io/log", false},
		{"allowed subdomain", "https://app.bitrise.io/log", false},
		{"s3 subdomain", "https://bucket.s3.amazonaws.com/obj", false},
		{"untrusted host", "https://example.com/log", true},
		{"suffix but not subdomain", "https://notbitrise.io/log", true},
		{"relative URL", "/just/a/path", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.validateDownloadURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTriggerBuild(t *testing.T) {
	var gotBody map[string]any

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /apps/my-app/builds", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"status":"ok","build_slug":"new-build"}`)
	})
	mux.HandleFunc("GET /apps/my-app/builds/new-build", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"slug":"new-build","status":0,"build_number":143,"triggered_workflow":"primary","triggered_at":"2026-03-01T12:00:00Z"}}`)
	})

	c := testClient(t, srv)

	build, err := c.TriggerBuild(context.Background(), "my-app", TriggerParams{
		Branch:       "main",
		WorkflowID:   "primary",
		Environments: map[string]string{"KEY": "value"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-build", build.Slug)

	hookInfo, ok := gotBody["hook_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bitrise", hookInfo["type"])

	buildParams, ok := gotBody["build_params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main", buildParams["branch"])
	assert.Equal(t, "primary", buildParams["workflow_id"])

	envs, ok := buildParams["environments"].([]any)
	require.True(t, ok)
	require.Len(t, envs, 1)

	env := envs[0].(map[string]any)
	assert.Equal(t, "KEY", env["mapped_to"])
	assert.Equal(t, "value", env["value"])
	assert.Equal(t, true, env["is_expand"])
}

func TestTriggerBuildNoSlugReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"ok","message":"queued"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	_, err := c.TriggerBuild(context.Background(), "my-app", TriggerParams{WorkflowID: "primary"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no slug returned")
}

func TestAbortBuildDefaultReason(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/my-app/builds/b1/abort", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	require.NoError(t, c.AbortBuild(context.Background(), "my-app", "b1", ""))
	assert.Equal(t, "Aborted via reprise CLI", gotBody["abort_reason"])
	assert.Equal(t, false, gotBody["abort_with_success"])
}

func TestFindAppByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"slug":"a1","title":"My iOS App"},
			{"slug":"a2","title":"Backend Service"}
		],"paging":{"total_item_count":2}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	app, err := c.FindAppByName(context.Background(), "backend service")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, "a2", app.Slug)

	app, err = c.FindAppByName(context.Background(), "no such app")
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestGetPipelineWrappedAndBare(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrapped", `{"data":{"id":"p1","status":1,"workflows":[{"name":"deploy","status":1}]}}`},
		{"bare", `{"id":"p1","status":1,"workflows":[{"name":"deploy","status":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := testClient(t, srv)

			pipeline, err := c.GetPipeline(context.Background(), "my-app", "p1")
			require.NoError(t, err)
			assert.Equal(t, "p1", pipeline.ID)

			snap := pipeline.Snapshot()
			assert.Equal(t, monitor.StatusSuccess, snap.Status)
			require.Len(t, snap.Stages, 1)
			assert.Equal(t, "deploy", snap.Stages[0].Name)
		})
	}
}

func TestPipelineJobLogNotAvailable(t *testing.T) {
	job := PipelineJob{Client: NewClient("", nil, "tok", nil)}

	_, err := job.Log(context.Background(), monitor.Handle{App: "a", ID: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, monitor.IsTransient(err))
}

func TestListAndGetArtifacts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apps/my-app/builds/build-1/artifacts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"slug": "art-1", "title": "app.apk", "file_size_bytes": 1024},
				{"slug": "art-2", "title": "report.html"},
			},
		})
	})
	mux.HandleFunc("GET /apps/my-app/builds/build-1/artifacts/art-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"slug":                  "art-1",
				"title":                 "app.apk",
				"expiring_download_url": "https://example.invalid/art-1",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)

	arts, err := c.ListArtifacts(context.Background(), "my-app", "build-1")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "app.apk", arts[0].Title)
	assert.Equal(t, int64(1024), arts[0].FileSizeBytes)

	art, err := c.GetArtifact(context.Background(), "my-app", "build-1", "art-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid/art-1", art.ExpiringDownloadURL)
}

func TestDownloadArtifactWritesFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/art-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "binary payload")
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	dest := filepath.Join(t.TempDir(), "app.apk")

	err := c.DownloadArtifact(context.Background(), srv.URL+"/files/art-1", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "binary payload", string(data))
}

func TestDownloadArtifactRejectsUntrustedHost(t *testing.T) {
	c := NewClient("", http.DefaultClient, "tok", nil)

	err := c.DownloadArtifact(context.Background(), "https://evil.example.com/a", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not trusted")
}
