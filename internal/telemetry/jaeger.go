package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: JAEGER INTEGRATION FOR DISTRIBUTED TRACING

Architecture:
  Gateway / Worker → OpenTelemetry SDK → Jaeger Exporter → Jaeger Collector → Jaeger UI

Without an endpoint the global tracer provider stays the otel no-op one, so
middleware.StartSpan is free to call everywhere.
*/

// InitJaeger installs a tracer provider exporting to jaegerEndpoint and
// returns its shutdown function. An empty endpoint disables tracing.
func InitJaeger(serviceName, env, jaegerEndpoint string) (func(context.Context) error, error) {
	if jaegerEndpoint == "" {
		log.Info().Msg("JAEGER_ENDPOINT not set, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	// Schemaless so the merge never conflicts with the SDK's default schema URL.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("endpoint", jaegerEndpoint).Str("service", serviceName).Msg("✓ Jaeger tracing initialized")

	// Learning: Always flush traces on shutdown!
	return tp.Shutdown, nil
}
