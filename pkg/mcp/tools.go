package mcp

import (
	"context"
	"time"

	"github.com/chitchat-ai/chitchat/pkg/dispatcher"
	"github.com/chitchat-ai/chitchat/pkg/models"
)

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args ToolArgs) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"chitchat_analyze":     handleAnalyze,
	"chitchat_rewrite":     handleRewrite,
	"chitchat_cache_stats": handleCacheStats,
	"chitchat_history":     handleHistory,
}

var promptSchema = map[string]any{
	"type":     "object",
	"required": []string{"prompt"},
	"properties": map[string]any{
		"prompt": map[string]any{
			"type":        "string",
			"description": "The draft prompt to evaluate",
		},
		"provider": map[string]any{
			"type":        "string",
			"enum":        []string{"ollama", "google", "openai", "claude"},
			"description": "Provider to use (optional, defaults to the configured one)",
		},
	},
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "chitchat_analyze",
		Description: "Rate a prompt as weak, moderate or strong, suggest two improvements and propose a rewrite.",
		InputSchema: promptSchema,
	},
	{
		Name:        "chitchat_rewrite",
		Description: "Rewrite a prompt to be clearer, more specific and more effective while keeping its intent.",
		InputSchema: promptSchema,
	},
	{
		Name:        "chitchat_cache_stats",
		Description: "Show response cache statistics (entries, hits, misses, evictions, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "chitchat_history",
		Description: "Search past analyses with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"provider": map[string]any{
					"type":        "string",
					"description": "Filter by provider (optional)",
				},
				"rating": map[string]any{
					"type":        "string",
					"description": "Filter by rating: weak, moderate, strong, unknown (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"request_id": map[string]any{
					"type":        "string",
					"description": "Filter by request ID (optional)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of entries (optional, default 20)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func (s *Server) resolve(provider string) (models.ProviderConfig, error) {
	if provider == "" {
		return s.providers.Active()
	}
	return s.providers.Lookup(models.ProviderID(provider))
}

func handleAnalyze(ctx context.Context, s *Server, args ToolArgs) ToolCallResult {
	cfg, err := s.resolve(args.Provider)
	if err != nil {
		return errorResult("Error: " + err.Error())
	}
	result, err := s.analyzer.Analyze(ctx, args.Prompt, cfg)
	if err != nil {
		return errorResult(failureText("Analysis failed", err))
	}
	return textResult(formatAnalysis(result))
}

func handleRewrite(ctx context.Context, s *Server, args ToolArgs) ToolCallResult {
	cfg, err := s.resolve(args.Provider)
	if err != nil {
		return errorResult("Error: " + err.Error())
	}
	text, err := s.analyzer.Rewrite(ctx, args.Prompt, cfg)
	if err != nil {
		return errorResult(failureText("Rewrite failed", err))
	}
	return textResult(text)
}

func handleCacheStats(_ context.Context, s *Server, _ ToolArgs) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleHistory(ctx context.Context, s *Server, args ToolArgs) ToolCallResult {
	if s.history == nil {
		return textResult("History is not configured.")
	}
	opts := models.HistoryQueryOpts{
		Provider:  models.ProviderID(args.Provider),
		Rating:    models.Rating(args.Rating),
		RequestID: args.RequestID,
		Limit:     20,
	}
	if args.Limit > 0 {
		opts.Limit = args.Limit
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.history.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching history: " + err.Error())
	}
	return textResult(formatHistory(entries))
}

func failureText(prefix string, err error) string {
	return prefix + " (" + dispatcher.Kind(err) + "): " + err.Error()
}
