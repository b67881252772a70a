// Package telemetry wires an OpenTelemetry TracerProvider for a node
// process: an OTLP-over-gRPC exporter when a collector endpoint is
// configured, a stdout exporter otherwise, matching the
// config.TracingConfig schema and the teacher's referenced (not
// retrieved) telemetry.InitTracer(cfg.Telemetry, serviceName, id) call
// from cmd/node/main.go.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"chordmr/internal/config"
	"chordmr/internal/logger"
)

// Shutdown flushes and stops the tracer provider. InitTracer always
// returns one, even when tracing is disabled, so callers can defer it
// unconditionally.
type Shutdown func(ctx context.Context) error

// InitTracer configures the global TracerProvider and propagator per
// cfg. When cfg.Enabled is false it installs a no-op provider and
// returns a Shutdown that does nothing.
func InitTracer(ctx context.Context, cfg config.TracingConfig, serviceName, nodeID string, lgr logger.Logger) Shutdown {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(otel.GetTracerProvider())
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(nodeID),
		),
	)
	if err != nil {
		lgr.Warn("telemetry: resource build failed, using default", logger.F("err", err))
		res = resource.Default()
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		lgr.Warn("telemetry: exporter init failed, tracing disabled", logger.F("err", err))
		return func(context.Context) error { return nil }
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

	lgr.Info("telemetry: tracing enabled",
		logger.F("otlp_endpoint", cfg.OTLPEndpoint),
		logger.F("service", serviceName))

	return tp.Shutdown
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.OTLPEndpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
	}
	return exp, nil
}
