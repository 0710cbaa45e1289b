package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

func tempCfg(t *testing.T) models.HistoryConfig {
	t.Helper()
	return models.HistoryConfig{
		Enabled:        true,
		DBPath:         filepath.Join(t.TempDir(), "history_test.db"),
		RetentionDays:  30,
		IncludePrompts: true,
		MaxPromptSize:  1024,
	}
}

func mustNew(t *testing.T, cfg models.HistoryConfig) *Store {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleEntry() models.HistoryEntry {
	return models.HistoryEntry{
		RequestID: "req-001",
		Provider:  models.ProviderOllama,
		Model:     "phi3:mini",
		Prompt:    "write me a poem",
		Rating:    models.RatingWeak,
		Rewrite:   "Write a four-line poem about autumn rain.",
		Status:    "ok",
		LatencyMs: 150,
		CreatedAt: time.Now(),
	}
}

func TestRecordAndQuery(t *testing.T) {
	s := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := s.Record(ctx, sampleEntry()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := s.Query(ctx, models.HistoryQueryOpts{Provider: models.ProviderOllama})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.RequestID != "req-001" || e.Rating != models.RatingWeak || e.Prompt != "write me a poem" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestQueryFilters(t *testing.T) {
	s := mustNew(t, tempCfg(t))
	ctx := context.Background()

	e1 := sampleEntry()
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	e2.Provider = models.ProviderClaude
	e2.Rating = models.RatingStrong
	for _, e := range []models.HistoryEntry{e1, e2} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		opts models.HistoryQueryOpts
		want int
	}{
		{"all", models.HistoryQueryOpts{}, 2},
		{"by provider", models.HistoryQueryOpts{Provider: models.ProviderClaude}, 1},
		{"by rating", models.HistoryQueryOpts{Rating: models.RatingWeak}, 1},
		{"by request id", models.HistoryQueryOpts{RequestID: "req-002"}, 1},
		{"limit", models.HistoryQueryOpts{Limit: 1}, 1},
		{"since future", models.HistoryQueryOpts{Since: time.Now().Add(time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.Query(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, len(entries))
			}
		})
	}
}

func TestRecordExcludesPrompts(t *testing.T) {
	cfg := tempCfg(t)
	cfg.IncludePrompts = false
	s := mustNew(t, cfg)
	ctx := context.Background()

	if err := s.Record(ctx, sampleEntry()); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Query(ctx, models.HistoryQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Prompt != "" || entries[0].Rewrite != "" {
		t.Errorf("expected prompt text to be dropped, got %+v", entries[0])
	}
}

func TestRecordTruncatesPrompt(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxPromptSize = 10
	s := mustNew(t, cfg)
	ctx := context.Background()

	e := sampleEntry()
	e.Prompt = strings.Repeat("x", 100)
	if err := s.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	entries, _ := s.Query(ctx, models.HistoryQueryOpts{})
	if len(entries[0].Prompt) != 10 {
		t.Errorf("expected prompt truncated to 10 bytes, got %d", len(entries[0].Prompt))
	}
}

func TestRecordTruncatesOnRuneBoundary(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxPromptSize = 11
	s := mustNew(t, cfg)
	ctx := context.Background()

	e := sampleEntry()
	e.Prompt = strings.Repeat("é", 20)
	e.Rewrite = "a" + strings.Repeat("日", 10)
	if err := s.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	entries, _ := s.Query(ctx, models.HistoryQueryOpts{})
	got := entries[0]
	if !utf8.ValidString(got.Prompt) || got.Prompt != strings.Repeat("é", 5) {
		t.Errorf("prompt = %q, want five runes of é", got.Prompt)
	}
	if !utf8.ValidString(got.Rewrite) || got.Rewrite != "a"+strings.Repeat("日", 3) {
		t.Errorf("rewrite = %q, want a plus three runes", got.Rewrite)
	}
}

func TestRecordSameRequestIDKeepsBoth(t *testing.T) {
	s := mustNew(t, tempCfg(t))
	ctx := context.Background()

	first := sampleEntry()
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := sampleEntry()
	second.Rating = models.RatingStrong
	for _, e := range []models.HistoryEntry{first, second} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Query(ctx, models.HistoryQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for reused request id, got %d", len(entries))
	}
	if entries[0].Rating != models.RatingStrong || entries[1].Rating != models.RatingWeak {
		t.Errorf("unexpected order: %s, %s", entries[0].Rating, entries[1].Rating)
	}
}

func TestStats(t *testing.T) {
	s := mustNew(t, tempCfg(t))
	ctx := context.Background()

	ok := sampleEntry()
	failed := sampleEntry()
	failed.RequestID = "req-002"
	failed.Status = "timeout"
	failed.Error = "ollama: request aborted after 10s"
	for _, e := range []models.HistoryEntry{ok, failed} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 stat row, got %d", len(stats))
	}
	if stats[0].Count != 2 || stats[0].Failures != 1 || stats[0].Provider != models.ProviderOllama {
		t.Errorf("unexpected stat: %+v", stats[0])
	}
}

func TestCleanup(t *testing.T) {
	s := mustNew(t, tempCfg(t))
	ctx := context.Background()

	old := sampleEntry()
	old.RequestID = "req-old"
	old.CreatedAt = time.Now().AddDate(0, 0, -60)
	if err := s.Record(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, sampleEntry()); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	entries, _ := s.Query(ctx, models.HistoryQueryOpts{})
	if len(entries) != 1 || entries[0].RequestID != "req-001" {
		t.Errorf("unexpected remaining entries: %+v", entries)
	}
}

func TestNilStoreRecord(t *testing.T) {
	var s *Store
	if err := s.Record(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil store should be a no-op, got %v", err)
	}
}
