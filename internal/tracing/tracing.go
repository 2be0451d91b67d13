// Package tracing configures OpenTelemetry export for the API.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Options configures the tracer provider.
type Options struct {
	// Endpoint is host:port or a full http(s) URL. Empty disables export.
	Endpoint    string
	ServiceName string
	Environment string
	// SampleRatio is the parent-based sampling ratio in [0, 1].
	SampleRatio float64
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs the global propagator and, when an endpoint is configured,
// an OTLP/HTTP batch exporter as the global tracer provider. The returned
// function must be called on shutdown.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if opts.Endpoint == "" {
		return noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, exporterOptions(opts.Endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	provider := NewProvider(sdktrace.WithBatcher(exporter), opts)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// NewProvider builds a tracer provider around processor with the service
// resource and sampler from opts.
func NewProvider(processor sdktrace.TracerProviderOption, opts Options) *sdktrace.TracerProvider {
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "smartdiet-api"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.DeploymentEnvironmentKey.String(opts.Environment),
	)

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
}

func exporterOptions(endpoint string) []otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	// Bare host:port is a local collector.
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	}
}

// ErrShutdown wraps a failed flush so callers can log it distinctly.
var ErrShutdown = errors.New("tracing shutdown")

// Shutdown calls fn and wraps its error.
func Shutdown(ctx context.Context, fn ShutdownFunc) error {
	if fn == nil {
		return nil
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrShutdown, err)
	}
	return nil
}
