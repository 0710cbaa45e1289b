package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// Sentinel errors identifying each failure kind. Typed errors below match
// their sentinel with errors.Is.
var (
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderHTTP        = errors.New("provider returned an error status")
	ErrProviderTimeout     = errors.New("provider request timed out")
	ErrNetwork             = errors.New("network error")
	ErrMalformedResponse   = errors.New("malformed provider response")
)

// HTTPError reports a non-2xx response. It is never retried.
type HTTPError struct {
	Provider   models.ProviderID
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, body)
}

// Is reports whether target is ErrProviderHTTP.
func (e *HTTPError) Is(target error) bool { return target == ErrProviderHTTP }

// TimeoutError reports that a timeout-bound provider call was aborted.
type TimeoutError struct {
	Provider models.ProviderID
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request aborted after %s", e.Provider, e.Timeout)
}

// Is reports whether target is ErrProviderTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrProviderTimeout }

// NetworkError reports a transport-level failure, distinct from an HTTP error status.
type NetworkError struct {
	Provider models.ProviderID
	Op       string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports whether target is ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// MalformedResponseError reports a response body that could not be parsed as JSON.
// A well-formed body that lacks the text field is not an error.
type MalformedResponseError struct {
	Provider models.ProviderID
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Provider, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// Kind returns a short, stable label for err, suitable for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyPrompt):
		return "empty_prompt"
	case errors.Is(err, ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, ErrProviderHTTP):
		return "http_error"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "unknown"
	}
}
