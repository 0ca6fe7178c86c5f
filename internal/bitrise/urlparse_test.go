package bitrise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ParsedURL
	}{
		{
			name: "build URL",
			raw:  "https://app.bitrise.io/build/abc123def456",
			want: ParsedURL{Kind: URLBuild, BuildSlug: "abc123def456"},
		},
		{
			name: "app URL",
			raw:  "https://app.bitrise.io/app/my-app-slug",
			want: ParsedURL{Kind: URLApp, AppSlug: "my-app-slug"},
		},
		{
			name: "pipeline URL",
			raw:  "https://app.bitrise.io/app/my-app/pipelines/f47ac10b-58cc",
			want: ParsedURL{Kind: URLPipeline, AppSlug: "my-app", PipelineID: "f47ac10b-58cc"},
		},
		{
			name: "trailing slash",
			raw:  "https://app.bitrise.io/build/abc123/",
			want: ParsedURL{Kind: URLBuild, BuildSlug: "abc123"},
		},
		{
			name: "query string ignored",
			raw:  "https://app.bitrise.io/build/abc123?tab=log",
			want: ParsedURL{Kind: URLBuild, BuildSlug: "abc123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURLRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrong host", "https://example.com/build/abc123"},
		{"api host", "https://api.bitrise.io/v0.1/apps"},
		{"no path", "https://app.bitrise.io/"},
		{"unknown shape", "https://app.bitrise.io/dashboard"},
		{"empty build slug", "https://app.bitrise.io/build/"},
		{"pipeline without id", "https://app.bitrise.io/app/my-app/pipelines"},
		{"not a url", "://nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestURLKindString(t *testing.T) {
	assert.Equal(t, "app", URLApp.String())
	assert.Equal(t, "build", URLBuild.String())
	assert.Equal(t, "pipeline", URLPipeline.String())
}
