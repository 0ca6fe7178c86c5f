package bitrise

import (
	"fmt"
	"net/url"
	"strings"
)

// URLKind distinguishes the Bitrise web URL shapes the CLI can dispatch on.
type URLKind int

const (
	URLApp URLKind = iota
	URLBuild
	URLPipeline
)

func (k URLKind) String() string {
	switch k {
	case URLApp:
		return "app"
	case URLBuild:
		return "build"
	default:
		return "pipeline"
	}
}

// ParsedURL is a dissected Bitrise web URL.
type ParsedURL struct {
	Kind       URLKind
	AppSlug    string // set for app and pipeline URLs
	BuildSlug  string // set for build URLs
	PipelineID string // set for pipeline URLs
}

// ParseURL parses the Bitrise web URL shapes:
//
//	https://app.bitrise.io/app/{app-slug}
//	https://app.bitrise.io/build/{build-slug}
//	https://app.bitrise.io/app/{app-slug}/pipelines/{pipeline-id}
func ParseURL(raw string) (ParsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURL{}, fmt.Errorf("bitrise: invalid URL %q: %w", raw, err)
	}

	if u.Host != "app.bitrise.io" {
		return ParsedURL{}, fmt.Errorf("bitrise: not a Bitrise URL: %q", raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case len(segments) == 2 && segments[0] == "build" && segments[1] != "":
		return ParsedURL{Kind: URLBuild, BuildSlug: segments[1]}, nil

	case len(segments) == 2 && segments[0] == "app" && segments[1] != "":
		return ParsedURL{Kind: URLApp, AppSlug: segments[1]}, nil

	case len(segments) == 4 && segments[0] == "app" && segments[2] == "pipelines" &&
		segments[1] != "" && segments[3] != "":
		return ParsedURL{Kind: URLPipeline, AppSlug: segments[1], PipelineID: segments[3]}, nil

	default:
		return ParsedURL{}, fmt.Errorf("bitrise: unrecognized Bitrise URL path %q", u.Path)
	}
}
