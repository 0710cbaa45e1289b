// Package analysis scores a draft prompt and proposes improvements by issuing
// the rating, suggestions and rewrite requests against one provider.
package analysis

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chitchat-ai/chitchat/pkg/dispatcher"
	"github.com/chitchat-ai/chitchat/pkg/models"
)

// MinPromptLength is the shortest prompt, in characters after trimming, that
// will be analyzed.
const MinPromptLength = 5

// ErrPromptTooShort is returned for prompts below MinPromptLength.
var ErrPromptTooShort = errors.New("prompt must be at least 5 characters")

const (
	ratingTemplate      = "Rate the following prompt as Weak, Moderate, or Strong. Consider clarity, specificity, and completeness. Only return the rating word.\n\nPrompt: "
	suggestionsTemplate = "Give two short suggestions (each under 15 words) to improve this prompt.\n\nPrompt: "
	rewriteTemplate     = "Rewrite the following prompt to be clearer, more specific, and more effective, while preserving its intent.\n\nPrompt: "
)

// Dispatcher sends a single prompt to a provider.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, cfg models.ProviderConfig, useCache bool) (string, error)
}

// HistoryRecorder persists finished analyses.
type HistoryRecorder interface {
	Record(ctx context.Context, entry models.HistoryEntry) error
}

// MetricsRecorder counts finished analyses.
type MetricsRecorder interface {
	RecordAnalysis(ctx context.Context, id models.ProviderID, rating models.Rating)
}

// Analyzer runs prompt analyses. It is safe for concurrent use.
type Analyzer struct {
	dispatcher Dispatcher
	useCache   bool
	history    HistoryRecorder
	metrics    MetricsRecorder
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache controls whether dispatches consult the response cache. Default true.
func WithCache(enabled bool) Option {
	return func(a *Analyzer) { a.useCache = enabled }
}

// WithHistory records each analysis, successful or not.
func WithHistory(h HistoryRecorder) Option {
	return func(a *Analyzer) { a.history = h }
}

// WithMetrics counts each successful analysis.
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithLogger sets the logger. Default is a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer on top of d.
func New(d Dispatcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		dispatcher: d,
		useCache:   true,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze rates prompt, asks for two suggestions and a rewrite. The three
// requests run concurrently; the first failure cancels the others and is
// returned.
func (a *Analyzer) Analyze(ctx context.Context, prompt string, cfg models.ProviderConfig) (models.Analysis, error) {
	if err := checkPrompt(prompt); err != nil {
		return models.Analysis{}, err
	}

	start := a.now()
	result := models.Analysis{
		RequestID: RequestIDFromContext(ctx),
		Provider:  cfg.ID,
		Model:     cfg.Model,
	}

	var rating, suggestions, rewrite string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rating, err = a.dispatcher.Dispatch(gctx, ratingTemplate+prompt, cfg, a.useCache)
		return err
	})
	g.Go(func() (err error) {
		suggestions, err = a.dispatcher.Dispatch(gctx, suggestionsTemplate+prompt, cfg, a.useCache)
		return err
	})
	g.Go(func() (err error) {
		rewrite, err = a.dispatcher.Dispatch(gctx, rewriteTemplate+prompt, cfg, a.useCache)
		return err
	})
	err := g.Wait()

	result.LatencyMs = a.now().Sub(start).Milliseconds()
	if err == nil {
		result.RawRating = rating
		result.Rating = NormalizeRating(rating)
		result.Suggestions = SplitSuggestions(suggestions)
		result.Rewrite = rewrite
	}

	a.record(ctx, prompt, result, err)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("request_id", result.RequestID).
			Str("provider", string(cfg.ID)).
			Str("kind", dispatcher.Kind(err)).
			Msg("analysis failed")
		return models.Analysis{}, err
	}

	if a.metrics != nil {
		a.metrics.RecordAnalysis(ctx, cfg.ID, result.Rating)
	}
	a.logger.Debug().
		Str("request_id", result.RequestID).
		Str("provider", string(cfg.ID)).
		Str("rating", string(result.Rating)).
		Int64("latency_ms", result.LatencyMs).
		Msg("analysis complete")
	return result, nil
}

// Rewrite returns only the improved version of prompt.
func (a *Analyzer) Rewrite(ctx context.Context, prompt string, cfg models.ProviderConfig) (string, error) {
	if err := checkPrompt(prompt); err != nil {
		return "", err
	}
	text, err := a.dispatcher.Dispatch(ctx, rewriteTemplate+prompt, cfg, a.useCache)
	if err != nil {
		a.logger.Warn().Err(err).Str("provider", string(cfg.ID)).Msg("rewrite failed")
		return "", err
	}
	return text, nil
}

func (a *Analyzer) record(ctx context.Context, prompt string, result models.Analysis, err error) {
	if a.history == nil {
		return
	}
	entry := models.HistoryEntry{
		RequestID: result.RequestID,
		Provider:  result.Provider,
		Model:     result.Model,
		Prompt:    prompt,
		Rating:    result.Rating,
		Rewrite:   result.Rewrite,
		Status:    "ok",
		LatencyMs: result.LatencyMs,
		CreatedAt: a.now(),
	}
	if err != nil {
		entry.Status = dispatcher.Kind(err)
		entry.Error = err.Error()
	}
	// The caller's context may already be canceled; the record still belongs
	// in the history.
	if rerr := a.history.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		a.logger.Error().Err(rerr).Str("request_id", entry.RequestID).Msg("history record failed")
	}
}

func checkPrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return dispatcher.ErrEmptyPrompt
	}
	if utf8.RuneCountInString(trimmed) < MinPromptLength {
		return ErrPromptTooShort
	}
	return nil
}

// NormalizeRating lower-cases raw and keeps only letters, then maps the
// result onto a known rating.
func NormalizeRating(raw string) models.Rating {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	switch r := models.Rating(b.String()); r {
	case models.RatingWeak, models.RatingModerate, models.RatingStrong:
		return r
	}
	return models.RatingUnknown
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// SplitSuggestions breaks a model reply into one suggestion per line,
// dropping list markers and blank lines.
func SplitSuggestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id used for history records.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id attached to ctx, or a fresh
// UUID when there is none.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
