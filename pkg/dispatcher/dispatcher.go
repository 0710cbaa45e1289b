// Package dispatcher routes prompts to the configured LLM provider and caches
// the generated text.
//
// A call moves through: cache check, then on a miss one provider request,
// then a cache write on success. Failures are returned as typed errors and
// are never logged or retried here; retry policy belongs to the caller.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chitchat-ai/chitchat/pkg/cache/memory"
	"github.com/chitchat-ai/chitchat/pkg/models"
	"github.com/chitchat-ai/chitchat/pkg/provider"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// Recorder observes completed dispatches.
type Recorder interface {
	RecordDispatch(ctx context.Context, id models.ProviderID, cached bool, duration time.Duration, err error)
}

// Dispatcher sends prompts to LLM providers. It is safe for concurrent use;
// the cache is the only state shared between calls.
type Dispatcher struct {
	client   *http.Client
	registry provider.Registry
	cache    *memory.Cache
	recorder Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for provider requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRegistry replaces the built-in adapter table.
func WithRegistry(r provider.Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithCache sets the response cache. A nil cache disables caching.
func WithCache(c *memory.Cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithRecorder sets a Recorder notified after every dispatch.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a Dispatcher with the default adapters and a fresh cache.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:   http.DefaultClient,
		registry: provider.DefaultRegistry(),
		cache:    memory.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cache returns the dispatcher's cache, or nil when caching is disabled.
func (d *Dispatcher) Cache() *memory.Cache {
	return d.cache
}

// Dispatch sends prompt to the provider described by cfg and returns the
// generated text, trimmed. With useCache, a live cached answer is returned
// without a network call, and a non-empty answer is cached.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, cfg models.ProviderConfig, useCache bool) (text string, err error) {
	start := time.Now()
	cached := false
	if d.recorder != nil {
		defer func() {
			d.recorder.RecordDispatch(ctx, cfg.ID, cached, time.Since(start), err)
		}()
	}

	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	useCache = useCache && d.cache != nil
	var key string
	if useCache {
		key = memory.Key(cfg.ID, prompt)
		if v, ok := d.cache.Get(key); ok {
			cached = true
			return v, nil
		}
	}

	adapter, ok := d.registry.Lookup(cfg.ID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.ID)
	}

	text, err = d.call(ctx, adapter, prompt, cfg)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)

	if useCache && text != "" {
		d.cache.Put(key, text)
	}
	return text, nil
}

// call performs exactly one provider request.
func (d *Dispatcher) call(ctx context.Context, adapter provider.Adapter, prompt string, cfg models.ProviderConfig) (string, error) {
	parent := ctx
	bounded := false
	if tb, ok := adapter.(provider.TimeoutBound); ok && tb.EnforceTimeout() && cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		bounded = true
	}

	// classify turns a transport error into a timeout when our own deadline,
	// not the caller's context, ended the call.
	classify := func(op string, err error) error {
		if bounded && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Provider: cfg.ID, Timeout: cfg.Timeout}
		}
		return &NetworkError{Provider: cfg.ID, Op: op, Err: err}
	}

	req, err := adapter.BuildRequest(ctx, prompt, cfg)
	if err != nil {
		return "", &NetworkError{Provider: cfg.ID, Op: "build request", Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", classify("request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classify("read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{Provider: cfg.ID, StatusCode: resp.StatusCode, Body: string(body)}
	}

	text, err := adapter.ParseResponse(body)
	if err != nil {
		return "", &MalformedResponseError{Provider: cfg.ID, Err: err}
	}
	return text, nil
}
