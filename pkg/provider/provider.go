// Package provider holds the request adapters for the supported LLM backends.
// Each adapter knows only its own wire format: how to build the HTTP request
// for a prompt and where the generated text lives in the response envelope.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// ErrInvalidJSON is returned by ParseResponse when the body is not JSON at all.
var ErrInvalidJSON = errors.New("response is not valid JSON")

// Adapter builds requests for and parses responses from one provider.
//
// ParseResponse returns an empty string, not an error, when the body is valid
// JSON but does not carry the expected text field.
type Adapter interface {
	ID() models.ProviderID
	BuildRequest(ctx context.Context, prompt string, cfg models.ProviderConfig) (*http.Request, error)
	ParseResponse(body []byte) (string, error)
}

// TimeoutBound is implemented by adapters whose calls are aborted client-side
// once ProviderConfig.Timeout has elapsed.
type TimeoutBound interface {
	EnforceTimeout() bool
}

// Registry maps provider ids to their adapters.
type Registry map[models.ProviderID]Adapter

// DefaultRegistry returns a Registry with the four built-in adapters.
func DefaultRegistry() Registry {
	return NewRegistry(&Ollama{}, &Gemini{}, &OpenAI{}, &Claude{})
}

// NewRegistry builds a Registry from the given adapters.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.ID()] = a
	}
	return r
}

// Lookup returns the adapter registered for id.
func (r Registry) Lookup(id models.ProviderID) (Adapter, bool) {
	a, ok := r[id]
	return a, ok
}

// newJSONRequest marshals body and creates a POST request carrying it.
func newJSONRequest(ctx context.Context, url string, body any, headers map[string]string) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// decodeLenient unmarshals body into v. Bodies that are not JSON are an error;
// JSON whose shape does not match v is not, so missing or mistyped fields
// simply stay at their zero value.
func decodeLenient(body []byte, v any) error {
	if !json.Valid(body) {
		return ErrInvalidJSON
	}
	var typeErr *json.UnmarshalTypeError
	if err := json.Unmarshal(body, v); err != nil && !errors.As(err, &typeErr) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
