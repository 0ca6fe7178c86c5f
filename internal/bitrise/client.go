package bitrise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the production Bitrise API endpoint.
	DefaultBaseURL = "https://api.bitrise.io/v0.1"

	userAgent = "reprise/0.1"
)

// allowedLogHosts lists the hosts raw log and artifact download URLs may
// point at. The API hands back expiring URLs; restricting their hosts
// prevents the client from being steered at arbitrary endpoints.
var allowedLogHosts = []string{
	"bitrise.io",
	"amazonaws.com",
}

// Client is an HTTP client for the Bitrise API. It handles request
// construction, token authentication, and error classification. Retry of
// transient failures is the caller's concern — the monitoring engine wraps
// individual calls in its own retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *slog.Logger

	// requestID tags every request from this invocation for traceability.
	requestID string

	// downloadHosts is the allow-list applied to expiring raw-log and
	// artifact URLs. Tests override it to point at local servers.
	downloadHosts []string
}

// NewClient creates a Bitrise API client authenticating with the given
// personal access token.
func NewClient(baseURL string, httpClient *http.Client, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		token:         token,
		logger:        logger,
		requestID:     uuid.NewString(),
		downloadHosts: allowedLogHosts,
	}
}

// get performs a GET against the API and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post performs a POST with a JSON body and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", c.requestID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bitrise: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, method, path); err != nil {
		return err
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bitrise: decoding %s response: %w", path, err)
	}

	return nil
}

// checkStatus converts non-2xx responses into classified APIErrors.
func (c *Client) checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(errBody)),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// getRaw fetches plain text (a raw log) from an expiring URL handed back
// by the API. The URL must pass the download-host allow-list.
func (c *Client) getRaw(ctx context.Context, rawURL string) (string, error) {
	if err := c.validateDownloadURL(rawURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bitrise: fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, http.MethodGet, rawURL); err != nil {
		return "", err
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("bitrise: reading raw content: %w", err)
	}

	return string(text), nil
}

// validateDownloadURL rejects expiring URLs whose host is not on the
// allow-list (exact match or subdomain).
func (c *Client) validateDownloadURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("bitrise: invalid download URL %q", rawURL)
	}

	host := parsed.Hostname()
	for _, allowed := range c.downloadHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}

	return fmt.Errorf("bitrise: download URL host %q is not trusted", host)
}
