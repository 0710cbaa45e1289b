package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// Ollama talks to a local Ollama server via /api/generate.
type Ollama struct{}

// ID implements Adapter.
func (o *Ollama) ID() models.ProviderID { return models.ProviderOllama }

// EnforceTimeout implements TimeoutBound. A local model can stall for a long
// time on a cold start, so its calls are bounded by the configured timeout.
func (o *Ollama) EnforceTimeout() bool { return true }

// BuildRequest implements Adapter.
func (o *Ollama) BuildRequest(ctx context.Context, prompt string, cfg models.ProviderConfig) (*http.Request, error) {
	reqBody := models.OllamaGenerateRequest{
		Model:  cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: models.OllamaOptions{
			NumPredict:  cfg.MaxOutputTokens,
			Temperature: cfg.Temperature,
		},
	}
	req, err := newJSONRequest(ctx, cfg.URL, reqBody, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return req, nil
}

// ParseResponse implements Adapter.
func (o *Ollama) ParseResponse(body []byte) (string, error) {
	var resp models.OllamaGenerateResponse
	if err := decodeLenient(body, &resp); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return resp.Response, nil
}
