package models

import "time"

// HistoryEntry represents a single recorded prompt analysis.
type HistoryEntry struct {
	RequestID string     `json:"request_id"`
	Provider  ProviderID `json:"provider"`
	Model     string     `json:"model"`
	Prompt    string     `json:"prompt,omitempty"`
	Rating    Rating     `json:"rating"`
	Rewrite   string     `json:"rewrite,omitempty"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	LatencyMs int64      `json:"latency_ms"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryConfig controls the analysis history subsystem.
type HistoryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DBPath         string `yaml:"db_path"`
	RetentionDays  int    `yaml:"retention_days"`
	IncludePrompts bool   `yaml:"include_prompts"`
	MaxPromptSize  int    `yaml:"max_prompt_size"` // bytes
}

// HistoryQueryOpts specifies filters for querying history entries.
type HistoryQueryOpts struct {
	Provider  ProviderID
	Rating    Rating
	Since     time.Time
	RequestID string
	Limit     int
}

// HistoryStat holds aggregate counts for a provider/day combination.
type HistoryStat struct {
	Provider ProviderID
	Day      string
	Count    int
	Failures int
}
