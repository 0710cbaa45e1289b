// Package server exposes prompt analysis and raw dispatch over HTTP for the
// browser overlay and other local clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chitchat-ai/chitchat/pkg/analysis"
	"github.com/chitchat-ai/chitchat/pkg/config"
	"github.com/chitchat-ai/chitchat/pkg/dispatcher"
	"github.com/chitchat-ai/chitchat/pkg/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server is the chitchat HTTP API.
type Server struct {
	cfg        *config.Config
	analyzer   *analysis.Analyzer
	dispatcher *dispatcher.Dispatcher
	metrics    http.Handler
	logger     zerolog.Logger
	handler    http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a Server wired with its dependencies.
func New(cfg *config.Config, a *analysis.Analyzer, d *dispatcher.Dispatcher, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		analyzer:   a,
		dispatcher: d,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("/v1/dispatch", s.handleDispatch)
	mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	s.handler = s.withRequestID(s.withCORS(s.withLogging(mux)))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down gracefully when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Listen).Msg("chitchat listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type analyzeRequest struct {
	Prompt   string            `json:"prompt"`
	Provider models.ProviderID `json:"provider,omitempty"`
}

type dispatchRequest struct {
	Prompt   string            `json:"prompt"`
	Provider models.ProviderID `json:"provider,omitempty"`
	UseCache *bool             `json:"use_cache,omitempty"`
}

type dispatchResponse struct {
	Provider models.ProviderID `json:"provider"`
	Model    string            `json:"model"`
	Text     string            `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pcfg, err := s.resolveProvider(req.Provider)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), req.Prompt, pcfg)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req dispatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pcfg, err := s.resolveProvider(req.Provider)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	useCache := s.cfg.Cache.Enabled
	if req.UseCache != nil {
		useCache = useCache && *req.UseCache
	}

	text, err := s.dispatcher.Dispatch(r.Context(), req.Prompt, pcfg, useCache)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{Provider: pcfg.ID, Model: pcfg.Model, Text: text})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	c := s.dispatcher.Cache()
	if c == nil {
		writeJSON(w, http.StatusOK, models.CacheStats{})
		return
	}
	stats, err := c.Stats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal", "cache stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": string(s.cfg.Provider)})
}

// resolveProvider returns the configuration for id, or the active provider
// when id is empty.
func (s *Server) resolveProvider(id models.ProviderID) (models.ProviderConfig, error) {
	if id == "" {
		return s.cfg.Active()
	}
	return s.cfg.Lookup(id)
}

// writeFailure maps an analysis or dispatch error onto an HTTP status.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	code, kind := statusFor(err)
	if code >= 500 {
		s.logger.Warn().Err(err).Str("kind", kind).Int("status", code).Msg("upstream failure")
	}
	writeJSONError(w, code, kind, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrPromptTooShort):
		return http.StatusBadRequest, "prompt_too_short"
	case errors.Is(err, config.ErrUnknownProvider):
		return http.StatusBadRequest, "unsupported_provider"
	}
	kind := dispatcher.Kind(err)
	switch kind {
	case "empty_prompt", "unsupported_provider":
		return http.StatusBadRequest, kind
	case "timeout":
		return http.StatusGatewayTimeout, kind
	case "http_error", "network", "malformed_response":
		return http.StatusBadGateway, kind
	case "canceled":
		// nginx's client-closed-request status.
		return 499, kind
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

// writeJSONError encodes message as JSON; it may carry raw upstream bytes.
func writeJSONError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, errorResponse{Error: errorDetail{Message: message, Type: kind, Code: code}})
}

// withRequestID propagates X-Request-ID, minting one when the client sent none.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := analysis.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withCORS lets the browser overlay call the API from any page.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Str("request_id", w.Header().Get("X-Request-ID")).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
