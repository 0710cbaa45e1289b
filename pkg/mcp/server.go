// Package mcp serves chitchat's analysis tools to MCP clients over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

// Analyzer scores and rewrites prompts.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, cfg models.ProviderConfig) (models.Analysis, error)
	Rewrite(ctx context.Context, prompt string, cfg models.ProviderConfig) (string, error)
}

// ProviderResolver maps a provider id to its configuration.
type ProviderResolver interface {
	Active() (models.ProviderConfig, error)
	Lookup(id models.ProviderID) (models.ProviderConfig, error)
}

// CacheStatter provides cache statistics without coupling to a concrete cache implementation.
type CacheStatter interface {
	Stats() (models.CacheStats, error)
}

// HistoryQuerier searches past analyses.
type HistoryQuerier interface {
	Query(ctx context.Context, opts models.HistoryQueryOpts) ([]models.HistoryEntry, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	analyzer  Analyzer
	providers ProviderResolver
	cache     CacheStatter
	history   HistoryQuerier
	version   string
	logger    zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCache enables the cache statistics tool.
func WithCache(c CacheStatter) Option {
	return func(s *Server) { s.cache = c }
}

// WithHistory enables the history search tool.
func WithHistory(h HistoryQuerier) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets the logger for transport errors. Logs must not go to the
// stdout stream that carries responses.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new MCP Server.
func New(a Analyzer, providers ProviderResolver, version string, opts ...Option) *Server {
	s := &Server{
		analyzer:  a,
		providers: providers,
		version:   version,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: jsonrpcVersion,
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		resp := s.route(ctx, &req)
		if resp == nil {
			// notification, no response
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) route(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "ping":
		return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: map[string]any{}}
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "chitchat", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		},
	}
}

func (s *Server) handleToolsList(req *Request) *Response {
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Result:  ToolsListResult{Tools: allTools},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return &Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Result:  errorResult(fmt.Sprintf("unknown tool: %s", params.Name)),
		}
	}

	var args ToolArgs
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return &Response{
				JSONRPC: jsonrpcVersion,
				ID:      req.ID,
				Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid tool arguments"},
			}
		}
	}

	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Result:  handler(ctx, s, args),
	}
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("mcp: marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error().Err(err).Msg("mcp: write response")
	}
}
