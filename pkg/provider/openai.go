package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// OpenAI talks to an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAI struct{}

// ID implements Adapter.
func (o *OpenAI) ID() models.ProviderID { return models.ProviderOpenAI }

// BuildRequest implements Adapter.
func (o *OpenAI) BuildRequest(ctx context.Context, prompt string, cfg models.ProviderConfig) (*http.Request, error) {
	reqBody := models.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []models.ChatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	req, err := newJSONRequest(ctx, cfg.URL, reqBody, headers)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return req, nil
}

// ParseResponse implements Adapter.
func (o *OpenAI) ParseResponse(body []byte) (string, error) {
	var resp models.ChatCompletionResponse
	if err := decodeLenient(body, &resp); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
