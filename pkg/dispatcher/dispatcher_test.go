package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chitchat-ai/chitchat/pkg/cache/memory"
	"github.com/chitchat-ai/chitchat/pkg/models"
)

// upstream is a fake provider that counts the requests it receives.
type upstream struct {
	*httptest.Server
	calls atomic.Int32
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func openAIReply(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := models.ChatCompletionResponse{
			ID:      "chatcmpl-1",
			Choices: []models.Choice{{Message: models.ChatMessage{Role: "assistant", Content: text}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func openAIConfig(url string) models.ProviderConfig {
	return models.ProviderConfig{
		ID:              models.ProviderOpenAI,
		URL:             url,
		Model:           "gpt-4o-mini",
		APIKey:          "sk-test",
		MaxOutputTokens: 200,
		Temperature:     0.3,
		Timeout:         time.Second,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestDispatchCachesResult(t *testing.T) {
	up := newUpstream(t, openAIReply("  Strong  "))
	d := New()
	cfg := openAIConfig(up.URL)

	first, err := d.Dispatch(context.Background(), "Write a haiku", cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if first != "Strong" {
		t.Errorf("expected trimmed text, got %q", first)
	}

	second, err := d.Dispatch(context.Background(), "Write a haiku", cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("cached result %q differs from first %q", second, first)
	}
	if n := up.calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestDispatchCacheKeyNormalized(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	d := New()
	cfg := openAIConfig(up.URL)

	if _, err := d.Dispatch(context.Background(), "Hello ", cfg, true); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), "hello", cfg, true); err != nil {
		t.Fatal(err)
	}
	if n := up.calls.Load(); n != 1 {
		t.Errorf("expected normalized prompts to share a cache entry, got %d calls", n)
	}
}

func TestDispatchCacheExpires(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := New(WithCache(memory.New(memory.WithClock(clock.Now))))
	cfg := openAIConfig(up.URL)

	if _, err := d.Dispatch(context.Background(), "prompt", cfg, true); err != nil {
		t.Fatal(err)
	}
	clock.Advance(memory.DefaultTTL + time.Second)
	if _, err := d.Dispatch(context.Background(), "prompt", cfg, true); err != nil {
		t.Fatal(err)
	}
	if n := up.calls.Load(); n != 2 {
		t.Errorf("expected a fresh call after TTL, got %d calls", n)
	}
}

func TestDispatchWithoutCache(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	d := New()
	cfg := openAIConfig(up.URL)

	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), "prompt", cfg, false); err != nil {
			t.Fatal(err)
		}
	}
	if n := up.calls.Load(); n != 2 {
		t.Errorf("expected 2 calls with caching off, got %d", n)
	}
	if d.Cache().Len() != 0 {
		t.Errorf("expected nothing cached, got %d entries", d.Cache().Len())
	}
}

func TestDispatchEmptyPrompt(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	d := New()
	cfg := openAIConfig(up.URL)

	for _, p := range []string{"", "   ", "\n\t"} {
		_, err := d.Dispatch(context.Background(), p, cfg, true)
		if !errors.Is(err, ErrEmptyPrompt) {
			t.Errorf("prompt %q: expected ErrEmptyPrompt, got %v", p, err)
		}
	}
	if n := up.calls.Load(); n != 0 {
		t.Errorf("expected no upstream calls, got %d", n)
	}
}

func TestDispatchUnsupportedProvider(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	d := New()
	cfg := openAIConfig(up.URL)
	cfg.ID = "unknown"

	_, err := d.Dispatch(context.Background(), "prompt", cfg, true)
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if n := up.calls.Load(); n != 0 {
		t.Errorf("expected no upstream calls, got %d", n)
	}
}

func TestDispatchHTTPError(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	})
	d := New()
	cfg := openAIConfig(up.URL)

	_, err := d.Dispatch(context.Background(), "prompt", cfg, true)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", httpErr.StatusCode)
	}
	if httpErr.Body != `{"error":{"message":"overloaded"}}` {
		t.Errorf("expected raw body, got %q", httpErr.Body)
	}
	if !errors.Is(err, ErrProviderHTTP) {
		t.Error("expected errors.Is(err, ErrProviderHTTP)")
	}
	if d.Cache().Len() != 0 {
		t.Error("failed dispatch must not populate the cache")
	}

	_, _ = d.Dispatch(context.Background(), "prompt", cfg, true)
	if n := up.calls.Load(); n != 2 {
		t.Errorf("expected no retry and no cached failure, got %d calls", n)
	}
}

func TestDispatchLocalTimeout(t *testing.T) {
	aborted := make(chan struct{})
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })
	d := New()
	cfg := models.ProviderConfig{
		ID:              models.ProviderOllama,
		URL:             up.URL + "/api/generate",
		Model:           "phi3:mini",
		MaxOutputTokens: 200,
		Timeout:         50 * time.Millisecond,
	}

	start := time.Now()
	_, err := d.Dispatch(context.Background(), "prompt", cfg, true)
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("timeout must not be reported as a network error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch took %v, expected abort near the timeout", elapsed)
	}

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Error("expected the upstream request to be aborted")
	}
	if d.Cache().Len() != 0 {
		t.Error("timed out dispatch must not populate the cache")
	}
}

func TestDispatchCallerCancelIsNotTimeout(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })
	d := New()
	cfg := models.ProviderConfig{
		ID:      models.ProviderOllama,
		URL:     up.URL,
		Timeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := d.Dispatch(ctx, "prompt", cfg, true)
	if errors.Is(err, ErrProviderTimeout) {
		t.Fatal("caller cancellation reported as provider timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if Kind(err) != "canceled" {
		t.Errorf("expected kind canceled, got %s", Kind(err))
	}
}

func TestDispatchNetworkError(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	url := up.URL
	up.Close()

	d := New()
	_, err := d.Dispatch(context.Background(), "prompt", openAIConfig(url), true)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) || netErr.Provider != models.ProviderOpenAI {
		t.Errorf("expected *NetworkError for openai, got %#v", err)
	}
}

func TestDispatchMalformedResponse(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	})
	d := New()

	_, err := d.Dispatch(context.Background(), "prompt", openAIConfig(up.URL), true)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if d.Cache().Len() != 0 {
		t.Error("malformed response must not populate the cache")
	}
}

func TestDispatchMissingFieldIsEmpty(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	d := New()
	cfg := openAIConfig(up.URL)

	text, err := d.Dispatch(context.Background(), "prompt", cfg, true)
	if err != nil {
		t.Fatalf("expected lenient success, got %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}

	_, _ = d.Dispatch(context.Background(), "prompt", cfg, true)
	if n := up.calls.Load(); n != 2 {
		t.Errorf("empty result must not be cached, got %d calls", n)
	}
}

func TestDispatchProviders(t *testing.T) {
	tests := []struct {
		name     string
		id       models.ProviderID
		path     string
		response string
	}{
		{"ollama", models.ProviderOllama, "/api/generate", `{"model":"phi3","response":"  Moderate \n","done":true}`},
		{"google", models.ProviderGoogle, "/v1beta/models/gemini-1.5-flash-latest:generateContent", `{"candidates":[{"content":{"parts":[{"text":"\n Moderate "}]}}]}`},
		{"openai", models.ProviderOpenAI, "/v1/chat/completions", `{"choices":[{"message":{"role":"assistant","content":" Moderate"}}]}`},
		{"claude", models.ProviderClaude, "/v1/messages", `{"content":[{"type":"text","text":"Moderate  "}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				fmt.Fprint(w, tt.response)
			})

			cfg := models.ProviderConfig{
				ID:              tt.id,
				URL:             up.URL + tt.path,
				Model:           "gemini-1.5-flash-latest",
				APIKey:          "key",
				MaxOutputTokens: 200,
				Timeout:         time.Second,
			}
			if tt.id == models.ProviderGoogle {
				cfg.URL = up.URL + "/v1beta/models/"
			}

			text, err := New().Dispatch(context.Background(), "Rate this", cfg, false)
			if err != nil {
				t.Fatal(err)
			}
			if text != "Moderate" {
				t.Errorf("got %q, want %q", text, "Moderate")
			}
		})
	}
}

func TestDispatchConcurrent(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		openAIReply("echo: "+req.Messages[0].Content)(w, r)
	})
	d := New()
	cfg := openAIConfig(up.URL)

	prompts := []string{"rating", "suggestions", "rewrite"}
	results := make([]string, len(prompts))
	var wg sync.WaitGroup
	for i, p := range prompts {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			text, err := d.Dispatch(context.Background(), p, cfg, true)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = text
		}(i, p)
	}
	wg.Wait()

	for i, p := range prompts {
		if results[i] != "echo: "+p {
			t.Errorf("result %d: got %q", i, results[i])
		}
	}
	if d.Cache().Len() != 3 {
		t.Errorf("expected 3 cache entries, got %d", d.Cache().Len())
	}
}

type recordedCall struct {
	id     models.ProviderID
	cached bool
	err    error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) RecordDispatch(_ context.Context, id models.ProviderID, cached bool, _ time.Duration, err error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{id: id, cached: cached, err: err})
	f.mu.Unlock()
}

func TestDispatchRecorder(t *testing.T) {
	up := newUpstream(t, openAIReply("ok"))
	rec := &fakeRecorder{}
	d := New(WithRecorder(rec))
	cfg := openAIConfig(up.URL)

	_, _ = d.Dispatch(context.Background(), "prompt", cfg, true)
	_, _ = d.Dispatch(context.Background(), "prompt", cfg, true)
	_, _ = d.Dispatch(context.Background(), "", cfg, true)

	if len(rec.calls) != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", len(rec.calls))
	}
	if rec.calls[0].cached || !rec.calls[1].cached {
		t.Errorf("unexpected cached flags: %+v", rec.calls)
	}
	if !errors.Is(rec.calls[2].err, ErrEmptyPrompt) {
		t.Errorf("expected empty prompt error recorded, got %v", rec.calls[2].err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrEmptyPrompt, "empty_prompt"},
		{fmt.Errorf("%w: %q", ErrUnsupportedProvider, "x"), "unsupported_provider"},
		{&HTTPError{StatusCode: 500}, "http_error"},
		{&TimeoutError{}, "timeout"},
		{&NetworkError{Err: errors.New("refused")}, "network"},
		{&NetworkError{Err: context.Canceled}, "canceled"},
		{&MalformedResponseError{Err: errors.New("bad")}, "malformed_response"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
