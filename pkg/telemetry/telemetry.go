// Package telemetry exports dispatch and analysis metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/chitchat-ai/chitchat/pkg/config"
	"github.com/chitchat-ai/chitchat/pkg/dispatcher"
	"github.com/chitchat-ai/chitchat/pkg/models"
)

const meterName = "github.com/chitchat-ai/chitchat"

// Telemetry records metrics for dispatches and analyses. A Telemetry built
// from a disabled config records into a no-op meter.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	dispatches metric.Int64Counter
	cacheHits  metric.Int64Counter
	errors     metric.Int64Counter
	latency    metric.Float64Histogram
	analyses   metric.Int64Counter
}

// New builds Telemetry for the configured exporter.
// Supported exporters: prometheus, stdout, none. The stdout exporter writes
// to out, which defaults to os.Stderr so stdout stays free for results.
func New(ctx context.Context, cfg config.MetricsConfig, out io.Writer) (*Telemetry, error) {
	if !cfg.Enabled || cfg.Exporter == "none" {
		return newTelemetry(noop.NewMeterProvider().Meter(meterName), nil, nil)
	}

	var (
		reader  sdkmetric.Reader
		handler http.Handler
	)
	switch cfg.Exporter {
	case "prometheus", "":
		reg := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		reader = exp
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case "stdout":
		if out == nil {
			out = os.Stderr
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", cfg.Exporter)
	}
	return NewWithReader(reader, handler)
}

// NewWithReader builds Telemetry on an explicit reader. handler, if non-nil,
// is returned by Handler.
func NewWithReader(reader sdkmetric.Reader, handler http.Handler) (*Telemetry, error) {
	res := resource.NewSchemaless(attribute.String("service.name", "chitchat"))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return newTelemetry(mp.Meter(meterName), mp, handler)
}

// Discard returns Telemetry that records nothing.
func Discard() *Telemetry {
	t, _ := newTelemetry(noop.NewMeterProvider().Meter(meterName), nil, nil)
	return t
}

func newTelemetry(meter metric.Meter, mp *sdkmetric.MeterProvider, handler http.Handler) (*Telemetry, error) {
	t := &Telemetry{provider: mp, handler: handler}
	var err error

	t.dispatches, err = meter.Int64Counter(
		"chitchat.dispatch.total",
		metric.WithDescription("Total number of prompt dispatches"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	t.cacheHits, err = meter.Int64Counter(
		"chitchat.dispatch.cache_hits",
		metric.WithDescription("Dispatches answered from the response cache"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	t.errors, err = meter.Int64Counter(
		"chitchat.dispatch.errors",
		metric.WithDescription("Failed dispatches by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	t.latency, err = meter.Float64Histogram(
		"chitchat.dispatch.duration_ms",
		metric.WithDescription("Dispatch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	t.analyses, err = meter.Int64Counter(
		"chitchat.analysis.total",
		metric.WithDescription("Completed prompt analyses by rating"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// RecordDispatch implements dispatcher.Recorder.
func (t *Telemetry) RecordDispatch(ctx context.Context, id models.ProviderID, cached bool, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("provider", string(id)))
	t.dispatches.Add(ctx, 1, opt)
	if cached {
		t.cacheHits.Add(ctx, 1, opt)
	}
	if err != nil {
		t.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", string(id)),
			attribute.String("kind", dispatcher.Kind(err)),
		))
	}
	t.latency.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordAnalysis counts a finished analysis.
func (t *Telemetry) RecordAnalysis(ctx context.Context, id models.ProviderID, rating models.Rating) {
	t.analyses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(id)),
		attribute.String("rating", string(rating)),
	))
}

// Handler returns the Prometheus scrape handler, or nil when the exporter
// does not serve one.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter shutdown: %w", err)
	}
	return nil
}

var _ dispatcher.Recorder = (*Telemetry)(nil)
