package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// Gemini talks to the Google Generative Language generateContent endpoint.
// The API key travels in the query string.
type Gemini struct{}

// ID implements Adapter.
func (g *Gemini) ID() models.ProviderID { return models.ProviderGoogle }

// BuildRequest implements Adapter.
func (g *Gemini) BuildRequest(ctx context.Context, prompt string, cfg models.ProviderConfig) (*http.Request, error) {
	endpoint, err := g.endpoint(cfg)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	reqBody := models.GeminiRequest{
		Contents: []models.GeminiContent{
			{Parts: []models.GeminiPart{{Text: prompt}}},
		},
		GenerationConfig: models.GeminiGenerationConfig{
			MaxOutputTokens: cfg.MaxOutputTokens,
			Temperature:     cfg.Temperature,
		},
	}
	req, err := newJSONRequest(ctx, endpoint, reqBody, nil)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	return req, nil
}

// endpoint joins the models base URL with the model name, unless the
// configured URL already names a generateContent method.
func (g *Gemini) endpoint(cfg models.ProviderConfig) (string, error) {
	raw := cfg.URL
	if !strings.Contains(raw, ":generateContent") {
		raw = strings.TrimRight(raw, "/") + "/" + cfg.Model + ":generateContent"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid provider URL: %w", err)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// ParseResponse implements Adapter.
func (g *Gemini) ParseResponse(body []byte) (string, error) {
	var resp models.GeminiResponse
	if err := decodeLenient(body, &resp); err != nil {
		return "", fmt.Errorf("google: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
