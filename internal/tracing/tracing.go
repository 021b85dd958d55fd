// Package tracing bootstraps the OpenTelemetry TracerProvider that
// backs the otel.Tracer handles the coordinator and transport packages
// acquire by name. Without a provider configured here, those handles
// are no-ops; Configure wires a real exporter so spans actually leave
// the process. Supported exporters: stdout (local debugging), OTLP/gRPC
// (a collector), and Jaeger (direct collector endpoint).
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names a supported span exporter backend.
type Exporter string

const (
	// ExporterNone disables tracing: Configure returns a no-op shutdown
	// func and leaves the global TracerProvider untouched.
	ExporterNone Exporter = ""
	// ExporterStdout writes spans as JSON to stdout, for local debugging.
	ExporterStdout Exporter = "stdout"
	// ExporterOTLPGRPC ships spans to an OTLP collector over gRPC.
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	// ExporterJaeger ships spans directly to a Jaeger collector.
	ExporterJaeger Exporter = "jaeger"
)

// Config selects and configures a span exporter.
type Config struct {
	ServiceName string
	Exporter    Exporter
	// Endpoint is the OTLP/gRPC target or the Jaeger collector URL,
	// depending on Exporter. Ignored for ExporterStdout/ExporterNone.
	Endpoint string
}

// Configure installs a global TracerProvider per cfg and returns a
// shutdown func the caller must invoke on exit to flush pending spans.
func Configure(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Exporter == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter %q: %w", cfg.Exporter, err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLPGRPC:
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		))
	case ExporterJaeger:
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	default:
		return nil, fmt.Errorf("unknown exporter %q", cfg.Exporter)
	}
}

// Tracer is a convenience wrapper around otel.Tracer for the
// coordinator's span name prefix.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
