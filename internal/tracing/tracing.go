// Package tracing sets up OpenTelemetry tracing with an OTLP/HTTP exporter.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/vk/flowloop/internal/ctxlog"
)

// Config holds configuration for tracing setup.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is host:port only; the exporter adds the path. Empty
	// disables tracing.
	OTLPEndpoint string
	SampleRatio  float64
}

// DefaultConfig returns a configuration that samples everything and exports
// nowhere until an endpoint is set.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRatio:    1.0,
	}
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider. Without an endpoint it leaves the
// default no-op provider in place.
func Setup(ctx context.Context, config Config) (Shutdown, error) {
	logger := ctxlog.FromContext(ctx)
	if config.OTLPEndpoint == "" {
		logger.Debug("Tracing disabled: no OTLP endpoint configured.")
		return noop, nil
	}

	logger.Info("Setting up tracing.",
		"service_name", config.ServiceName,
		"otlp_endpoint", config.OTLPEndpoint,
		"environment", config.Environment)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Stop runs shutdown with a bounded timeout and logs the outcome.
func Stop(ctx context.Context, shutdown Shutdown) error {
	if shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	logger := ctxlog.FromContext(ctx)
	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shut down tracing.", "error", err)
		return err
	}
	logger.Debug("Tracing shut down.")
	return nil
}
