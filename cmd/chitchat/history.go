package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chitchat-ai/chitchat/pkg/config"
	"github.com/chitchat-ai/chitchat/pkg/history"
	"github.com/chitchat-ai/chitchat/pkg/models"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query and manage the analysis history",
	}

	cmd.AddCommand(
		newHistorySearchCmd(configPath),
		newHistoryShowCmd(configPath),
		newHistoryStatsCmd(configPath),
		newHistoryCleanupCmd(configPath),
	)
	return cmd
}

func newHistorySearchCmd(configPath *string) *cobra.Command {
	var (
		providerID string
		rating     string
		since      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search past analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.HistoryQueryOpts{
				Provider: models.ProviderID(providerID),
				Rating:   models.Rating(rating),
				Limit:    limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := s.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatHistoryEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "filter by provider")
	cmd.Flags().StringVar(&rating, "rating", "", "filter by rating (weak, moderate, strong, unknown)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newHistoryShowCmd(configPath *string) *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the newest analysis for a request ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request-id is required")
			}

			s, cleanup, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := s.Query(context.Background(), models.HistoryQueryOpts{
				RequestID: requestID,
				Limit:     1,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entry found for that request ID.")
				return nil
			}

			e := entries[0]
			fmt.Fprintf(out, "Request ID:  %s\n", e.RequestID)
			fmt.Fprintf(out, "Provider:    %s\n", e.Provider)
			fmt.Fprintf(out, "Model:       %s\n", e.Model)
			fmt.Fprintf(out, "Rating:      %s\n", e.Rating)
			fmt.Fprintf(out, "Status:      %s\n", e.Status)
			fmt.Fprintf(out, "Latency:     %dms\n", e.LatencyMs)
			fmt.Fprintf(out, "Time:        %s\n", e.CreatedAt.Format(time.RFC3339))
			if e.Error != "" {
				fmt.Fprintf(out, "Error:       %s\n", e.Error)
			}
			if e.Prompt != "" {
				fmt.Fprintf(out, "\n--- Prompt ---\n%s\n", e.Prompt)
			}
			if e.Rewrite != "" {
				fmt.Fprintf(out, "\n--- Rewrite ---\n%s\n", e.Rewrite)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID to show")
	return cmd
}

func newHistoryStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show analysis counts by provider and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := s.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatHistoryStats(stats))
			return nil
		},
	}
}

func newHistoryCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete analyses older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := s.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d history entries.\n", deleted)
			return nil
		},
	}
}

// openHistory opens the history database even when recording is disabled,
// so past entries stay inspectable.
func openHistory(configPath string) (*history.Store, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	s, err := history.New(cfg.History)
	if err != nil {
		return nil, nil, fmt.Errorf("open history db: %w", err)
	}
	return s, func() { _ = s.Close() }, nil
}

func formatHistoryEntries(entries []models.HistoryEntry) string {
	if len(entries) == 0 {
		return "No history entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-8s %-24s %-10s %-18s %8s %-20s\n",
		"REQUEST ID", "PROVIDER", "MODEL", "RATING", "STATUS", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 132) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-8s %-24s %-10s %-18s %6dms %-20s\n",
			e.RequestID, e.Provider, e.Model, e.Rating, e.Status,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatHistoryStats(stats []models.HistoryStat) string {
	if len(stats) == 0 {
		return "No history stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-12s %8s %8s\n", "PROVIDER", "DAY", "COUNT", "FAILED")
	b.WriteString(strings.Repeat("-", 41) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-10s %-12s %8d %8d\n", s.Provider, s.Day, s.Count, s.Failures)
	}
	return b.String()
}
