package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// AnthropicVersion is sent in the anthropic-version header.
const AnthropicVersion = "2023-06-01"

// Claude talks to the Anthropic Messages API.
type Claude struct{}

// ID implements Adapter.
func (c *Claude) ID() models.ProviderID { return models.ProviderClaude }

// BuildRequest implements Adapter.
func (c *Claude) BuildRequest(ctx context.Context, prompt string, cfg models.ProviderConfig) (*http.Request, error) {
	reqBody := models.AnthropicRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
		Messages: []models.ChatMessage{
			{Role: "user", Content: prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": AnthropicVersion,
	}
	req, err := newJSONRequest(ctx, cfg.URL, reqBody, headers)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	return req, nil
}

// ParseResponse implements Adapter.
func (c *Claude) ParseResponse(body []byte) (string, error) {
	var resp models.AnthropicResponse
	if err := decodeLenient(body, &resp); err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", nil
	}
	return resp.Content[0].Text, nil
}
