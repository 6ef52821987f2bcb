// Package telemetry installs the global OpenTelemetry tracer provider.
// Production exports spans over OTLP gRPC to whatever collector
// OTEL_EXPORTER_OTLP_ENDPOINT points at; development pretty-prints them to
// stdout. Logs stay on the slog pipeline and are not exported here.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/riverajo/fitness-app/internal/logger"
)

const serviceName = "fitapp"

// Setup wires the tracer provider and the W3C propagators into the otel
// globals. The returned shutdown flushes buffered spans; call it on the way
// out with a context that still has some time on it.
func Setup(ctx context.Context, environment string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("error while building telemetry resource. Err: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if environment == logger.EnvProduction {
		exporter, err = otlptracegrpc.New(ctx)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("error while creating span exporter. Err: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
