// Package telemetry provides the optional OpenTelemetry tracer used to
// follow a car's reconnect attempts to the controller across process
// boundaries. It is off by default: every process runs against a noop
// tracer unless explicitly configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds telemetry configuration, read from environment variables
// by the cmd/ binaries so that tracing can be toggled without a
// dedicated config file.
type Config struct {
	// Enabled determines whether a real exporter is wired up.
	Enabled bool

	// ServiceName is the name of the process (e.g., "car", "controller").
	ServiceName string

	// Endpoint is the OTLP/HTTP collector endpoint (e.g., "localhost:4318").
	Endpoint string
}

// Provider owns the tracer provider's lifecycle so the process can flush
// spans on shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs a global tracer provider per cfg. When cfg.Enabled
// is false it installs a noop provider and returns immediately.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the tracer provider. A no-op for a disabled
// Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

// Tracer returns a tracer scoped to name from the current global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
