// Package tracing wires up the OpenTelemetry TracerProvider shared by
// both gateways. go.opentelemetry.io/otel and its sdk are carried as
// direct dependencies by abramin-Credo and saturnino-fabrica-de-software-rekko's
// go.mod files; this package gives that dependency a concrete, exercised
// home: every HTTP handler is wrapped with otelhttp so a request can be
// followed across the Edge Gateway -> Inference Gateway hop.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the TracerProvider.
type Shutdown func(ctx context.Context) error

// Setup builds and installs a global TracerProvider for serviceName. When
// otlpEndpoint is empty, spans are written to a stdout exporter instead
// of an OTLP collector, so the service is traceable out of the box in
// local/dev environments without standing up a collector.
func Setup(ctx context.Context, serviceName, otlpEndpoint string) (Shutdown, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	exporter, err := newExporter(ctx, otlpEndpoint)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, otlpEndpoint string) (sdktrace.SpanExporter, error) {
	if otlpEndpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("build stdout trace exporter: %w", err)
		}
		return exporter, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(otlpEndpoint))
	if err != nil {
		return nil, fmt.Errorf("build otlp trace exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns the named tracer from the global TracerProvider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
