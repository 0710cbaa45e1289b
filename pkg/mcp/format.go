package mcp

import (
	"fmt"
	"strings"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// formatAnalysis renders an analysis the way the browser panel lays it out.
func formatAnalysis(a models.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Strength: %s", a.Rating)
	if a.RawRating != "" && !strings.EqualFold(a.RawRating, string(a.Rating)) {
		fmt.Fprintf(&b, " (%s)", a.RawRating)
	}
	b.WriteString("\n\nSuggestions:\n")
	if len(a.Suggestions) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, s := range a.Suggestions {
		fmt.Fprintf(&b, "  - %s\n", s)
	}
	fmt.Fprintf(&b, "\nImproved prompt:\n%s\n", a.Rewrite)
	fmt.Fprintf(&b, "\n[%s/%s, %dms, request %s]\n", a.Provider, a.Model, a.LatencyMs, a.RequestID)
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:   %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Evictions: %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, stats.Evictions, hitRate)
}

// formatHistory formats history entries as a text table.
func formatHistory(entries []models.HistoryEntry) string {
	if len(entries) == 0 {
		return "No analyses found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-38s %-8s %-10s %-18s %8s  %s\n",
		"Time", "Request ID", "Provider", "Rating", "Status", "Latency", "Prompt")
	b.WriteString(strings.Repeat("-", 130) + "\n")
	for _, e := range entries {
		prompt := strings.ReplaceAll(e.Prompt, "\n", " ")
		if len(prompt) > 40 {
			prompt = prompt[:37] + "..."
		}
		fmt.Fprintf(&b, "%-20s %-38s %-8s %-10s %-18s %6dms  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.RequestID, e.Provider, e.Rating, e.Status, e.LatencyMs, prompt)
	}
	return b.String()
}
