// Package telemetry installs an OTLP trace provider for rhi binaries.
package telemetry

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the exporter. Tracing is off unless Endpoint is set.
type Config struct {
	Endpoint string  `env:"RHI_OTEL_ENDPOINT"`
	Enabled  bool    `env:"RHI_OTEL_ENABLED" envDefault:"true"`
	Ratio    float64 `env:"RHI_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// ConfigFromEnv reads Config from RHI_OTEL_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("telemetry: parse config: %w", err)
	}
	return cfg, nil
}

// Setup registers a global tracer provider exporting to cfg.Endpoint and
// returns its shutdown function. When tracing is off Setup registers nothing
// and returns a no-op shutdown.
func Setup(ctx context.Context, service string, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("telemetry: exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return noop, fmt.Errorf("telemetry: resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.Ratio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Ratio))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
