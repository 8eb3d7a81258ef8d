// Package telemetry installs the process-wide OpenTelemetry tracer provider.
// Spans are created by the context engine, the memory pipeline and the chat
// service through otel.Tracer; without Setup they go to the no-op provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls trace export.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector host:port. Empty uses the
	// exporter's environment defaults (OTEL_EXPORTER_OTLP_ENDPOINT).
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as service.name. Default: "mnemo".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root traces kept, in [0,1]. Default: 1.
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// Validate checks the sample ratio.
func (c Config) Validate() error {
	if c.SampleRatio != nil && (*c.SampleRatio < 0 || *c.SampleRatio > 1) {
		return fmt.Errorf("telemetry: sample_ratio %v out of [0,1]", *c.SampleRatio)
	}
	return nil
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP. When
// tracing is disabled it installs nothing and returns a no-op Shutdown.
func Setup(ctx context.Context, cfg Config, version string, logger *slog.Logger) (Shutdown, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	tp := NewTracerProvider(cfg, version, sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("telemetry export failed", "error", err)
	}))
	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "service", serviceName(cfg))

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// NewTracerProvider builds a tracer provider carrying the service resource
// and the configured sampler. Extra options attach exporters or processors.
func NewTracerProvider(cfg Config, version string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	ratio := 1.0
	if cfg.SampleRatio != nil {
		ratio = *cfg.SampleRatio
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("service.version", version),
	)
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}

// TraceID returns the hex trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func serviceName(cfg Config) string {
	if cfg.ServiceName == "" {
		return "mnemo"
	}
	return cfg.ServiceName
}
