// Package tracing wires per-node execution spans through OpenTelemetry,
// exported via OTLP/gRPC when an endpoint is configured and a no-op
// provider otherwise. Grounded on the teacher's pkg/observability/tracer.go
// (InitGlobalTracer's otlptracegrpc exporter, resource.WithAttributes
// service name, noop fallback), generalized from its YAML-driven
// TracerConfig down to the two inputs this engine's bootstrapper has: a
// service name and an optional collector endpoint.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Init builds and installs the global TracerProvider. With an empty
// endpoint it installs a no-op provider so every Tracer call is free;
// callers never need an "is tracing enabled" branch of their own.
func Init(ctx context.Context, serviceName, endpoint string) (trace.TracerProvider, func(context.Context) error, error) {
	if endpoint == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// RecordNodeSpan reports one already-finished node execution as a span
// covering [end-d, end]. It exists so pkg/graph.Options.OnNodeFinish can
// feed tracing the same way it feeds pkg/metrics, without pkg/graph
// importing OpenTelemetry directly.
func RecordNodeSpan(tracer trace.Tracer, node string, d time.Duration, nodeErr error) {
	end := time.Now()
	start := end.Add(-d)

	_, span := tracer.Start(context.Background(), node, trace.WithTimestamp(start),
		trace.WithAttributes(attribute.String("node.name", node)))
	if nodeErr != nil {
		span.RecordError(nodeErr)
		span.SetStatus(codes.Error, nodeErr.Error())
	}
	span.End(trace.WithTimestamp(end))
}
