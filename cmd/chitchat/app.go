package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chitchat-ai/chitchat/pkg/analysis"
	"github.com/chitchat-ai/chitchat/pkg/cache/memory"
	"github.com/chitchat-ai/chitchat/pkg/config"
	"github.com/chitchat-ai/chitchat/pkg/dispatcher"
	"github.com/chitchat-ai/chitchat/pkg/history"
	"github.com/chitchat-ai/chitchat/pkg/logging"
	"github.com/chitchat-ai/chitchat/pkg/models"
	"github.com/chitchat-ai/chitchat/pkg/telemetry"
)

// hostedClientTimeout bounds hosted provider calls, which carry no deadline
// of their own. It stays above the local provider's default so the local
// deadline fires first.
const hostedClientTimeout = 60 * time.Second

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	telemetry  *telemetry.Telemetry
	dispatcher *dispatcher.Dispatcher
	analyzer   *analysis.Analyzer
	history    *history.Store
}

// newApp loads configuration and wires the dispatcher stack. Logs go to
// stderr so stdout stays free for results and the MCP stream.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	tel, err := telemetry.New(ctx, cfg.Metrics, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	var cache *memory.Cache
	if cfg.Cache.Enabled {
		cache = memory.New()
	}
	d := dispatcher.New(
		dispatcher.WithHTTPClient(&http.Client{Timeout: hostedClientTimeout}),
		dispatcher.WithCache(cache),
		dispatcher.WithRecorder(tel),
	)

	a := &app{
		cfg:        cfg,
		logger:     logger,
		telemetry:  tel,
		dispatcher: d,
	}

	opts := []analysis.Option{
		analysis.WithCache(cfg.Cache.Enabled),
		analysis.WithMetrics(tel),
		analysis.WithLogger(logger),
	}
	if cfg.History.Enabled {
		a.history, err = history.New(cfg.History)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("open history db: %w", err)
		}
		opts = append(opts, analysis.WithHistory(a.history))
	}
	a.analyzer = analysis.New(d, opts...)
	return a, nil
}

// Close flushes metrics and closes the history store.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("metrics shutdown")
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("history close")
		}
	}
}

// provider resolves the --provider flag, falling back to the active provider.
func (a *app) provider(id string) (models.ProviderConfig, error) {
	if id == "" {
		return a.cfg.Active()
	}
	return a.cfg.Lookup(models.ProviderID(id))
}

// readPrompt joins args, or reads stdin when args are empty or "-".
func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	return string(data), nil
}
