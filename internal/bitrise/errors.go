// Package bitrise provides a client for the Bitrise REST API (v0.1):
// request construction, authentication, error classification, and typed
// wrappers for the app, build, pipeline, and artifact endpoints.
package bitrise

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, bitrise.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("bitrise: bad request")
	ErrUnauthorized = errors.New("bitrise: unauthorized")
	ErrForbidden    = errors.New("bitrise: forbidden")
	ErrNotFound     = errors.New("bitrise: not found")
	ErrServerError  = errors.New("bitrise: server error")
)

// APIError wraps a sentinel error with the HTTP status code and the API
// error message body.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitrise: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is server-side and worth retrying.
// The monitoring engine's retry policy consults this.
func (e *APIError) Transient() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
