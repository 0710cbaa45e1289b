package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chitchat-ai/chitchat/pkg/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all chitchat configuration.
type Config struct {
	Listen    string                  `yaml:"listen"`
	Provider  models.ProviderID       `yaml:"provider"`
	Providers []models.ProviderConfig `yaml:"providers"`
	Cache     CacheConfig             `yaml:"cache"`
	History   models.HistoryConfig    `yaml:"history"`
	Log       LogConfig               `yaml:"log"`
	Metrics   MetricsConfig           `yaml:"metrics"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // console|json
}

// MetricsConfig controls OpenTelemetry metrics export.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // prometheus|stdout|none
}

// ErrUnknownProvider is returned when the active provider has no configuration entry.
var ErrUnknownProvider = errors.New("provider not configured")

// Defaults applied to provider entries that leave generation parameters unset.
const (
	DefaultMaxOutputTokens = 200
	DefaultTemperature     = 0.3
	DefaultTimeout         = 10 * time.Second
)

// Default returns a Config with sensible defaults. The local Ollama server is
// the active provider; the hosted vendors are listed without credentials.
func Default() *Config {
	return &Config{
		Listen:   "127.0.0.1:8787",
		Provider: models.ProviderOllama,
		Providers: []models.ProviderConfig{
			{
				ID:              models.ProviderOllama,
				URL:             "http://localhost:11434/api/generate",
				Model:           "phi3:mini",
				MaxOutputTokens: DefaultMaxOutputTokens,
				Temperature:     DefaultTemperature,
				Timeout:         DefaultTimeout,
			},
			{
				ID:              models.ProviderGoogle,
				URL:             "https://generativelanguage.googleapis.com/v1beta/models/",
				Model:           "gemini-1.5-flash-latest",
				MaxOutputTokens: DefaultMaxOutputTokens,
				Temperature:     DefaultTemperature,
				Timeout:         DefaultTimeout,
			},
			{
				ID:              models.ProviderOpenAI,
				URL:             "https://api.openai.com/v1/chat/completions",
				Model:           "gpt-4o-mini",
				MaxOutputTokens: DefaultMaxOutputTokens,
				Temperature:     DefaultTemperature,
				Timeout:         DefaultTimeout,
			},
			{
				ID:              models.ProviderClaude,
				URL:             "https://api.anthropic.com/v1/messages",
				Model:           "claude-3-haiku-20240307",
				MaxOutputTokens: DefaultMaxOutputTokens,
				Temperature:     DefaultTemperature,
				Timeout:         DefaultTimeout,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		History: models.HistoryConfig{
			Enabled:       false,
			DBPath:        "chitchat.db",
			RetentionDays: 30,
			MaxPromptSize: 8192,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Exporter: "prometheus",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
// A .env file next to the config file is loaded first, if present; variables
// already set in the environment win.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	// Sequences in the file replace the defaults, so a providers list fully
	// overrides the built-in entries.
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is non-empty and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) applyProviderDefaults() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.MaxOutputTokens <= 0 {
			p.MaxOutputTokens = DefaultMaxOutputTokens
		}
		if p.Timeout <= 0 {
			p.Timeout = DefaultTimeout
		}
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	seen := make(map[models.ProviderID]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return errors.New("provider entry is missing an id")
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %q configured more than once", p.ID)
		}
		seen[p.ID] = true
		if p.URL == "" {
			return fmt.Errorf("provider %q: url is required", p.ID)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("provider %q: temperature must be between 0 and 2, got %v", p.ID, p.Temperature)
		}
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format: %q", c.Log.Format)
	}
	return nil
}

// Active returns the configuration for the selected provider.
func (c *Config) Active() (models.ProviderConfig, error) {
	return c.Lookup(c.Provider)
}

// Lookup returns the configuration entry for the given provider id.
func (c *Config) Lookup(id models.ProviderID) (models.ProviderConfig, error) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, nil
		}
	}
	return models.ProviderConfig{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}
