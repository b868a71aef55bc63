// Package telemetry configures OpenTelemetry tracing for the decil CLI.
//
// Tracing is off unless OTEL_EXPORTER_OTLP_ENDPOINT (or the traces specific
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT) is set. The exporter reads the other
// standard OTEL_EXPORTER_OTLP_* variables itself.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// Enabled reports whether an OTLP endpoint is configured.
func Enabled() bool {
	for _, env := range []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"} {
		if os.Getenv(env) != "" {
			return true
		}
	}

	return false
}

// Init installs a global tracer provider exporting to the configured OTLP
// endpoint. Without an endpoint it does nothing and returns a no-op
// [ShutdownFunc].
func Init(ctx context.Context, service, version string) (ShutdownFunc, error) {
	if !Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", service),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}

		return nil
	}, nil
}
