package models

import "time"

// ProviderID identifies one of the supported LLM backends.
type ProviderID string

const (
	ProviderOllama ProviderID = "ollama"
	ProviderGoogle ProviderID = "google"
	ProviderOpenAI ProviderID = "openai"
	ProviderClaude ProviderID = "claude"
)

// ProviderConfig defines an upstream LLM provider and its generation parameters.
// It is treated as immutable for the lifetime of a request.
type ProviderConfig struct {
	ID              ProviderID    `json:"id" yaml:"id"`
	URL             string        `json:"url" yaml:"url"`
	Model           string        `json:"model" yaml:"model"`
	APIKey          string        `json:"-" yaml:"api_key"`
	MaxOutputTokens int           `json:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature     float64       `json:"temperature" yaml:"temperature"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
}
