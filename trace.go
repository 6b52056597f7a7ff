package perfprobe

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "perfprobe"

// TracerProvider provides the tracer used to record one span per measured
// URL.
type TracerProvider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracerProvider creates a TracerProvider exporting spans over OTLP/HTTP
// to endpoint (host:port). An empty endpoint returns a noop provider.
func NewTracerProvider(ctx context.Context, endpoint string) (*TracerProvider, error) {
	if endpoint == "" {
		return NewNoopTracerProvider(), nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	prov := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	return &TracerProvider{
		TracerProvider: prov,
		shutdown:       prov.Shutdown,
	}, nil
}

// NewNoopTracerProvider creates a TracerProvider that records nothing.
func NewNoopTracerProvider() *TracerProvider {
	return &TracerProvider{
		TracerProvider: noop.NewTracerProvider(),
		shutdown:       func(context.Context) error { return nil },
	}
}

// Tracer returns the perfprobe tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.TracerProvider.Tracer(serviceName)
}

// Shutdown flushes and stops the exporter, if any.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.shutdown(ctx)
}
