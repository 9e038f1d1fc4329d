// Package telemetry wires OpenTelemetry providers for the shapes commands.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jilio/shapes/internal/config"
	shapesotel "github.com/jilio/shapes/otel"
)

// ShutdownFunc flushes and stops the providers.
type ShutdownFunc func(context.Context) error

// Setup builds trace and meter providers and returns the bus observability
// bound to them. With an endpoint configured the providers export over
// OTLP/HTTP, otherwise they write JSON lines to cfg.File. When telemetry is
// disabled it returns a nil Observability and a no-op shutdown.
func Setup(cfg config.TelemetryConfig, service, version string) (*shapesotel.Observability, ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return nil, noop, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // Empty schema URL to avoid conflicts
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("telemetry: resource: %w", err)
	}

	var exp *exporters
	if cfg.Endpoint != "" {
		exp, err = otlpExporters(cfg.Endpoint)
	} else {
		exp, err = fileExporters(cfg.File)
	}
	if err != nil {
		return nil, noop, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp.trace),
		sdktrace.WithResource(res),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metric)),
		sdkmetric.WithResource(res),
	)

	shutdown := func(ctx context.Context) error {
		errs := []error{
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		}
		if exp.closer != nil {
			errs = append(errs, exp.closer.Close())
		}
		return errors.Join(errs...)
	}

	obs, err := shapesotel.New(
		shapesotel.WithTracerProvider(tracerProvider),
		shapesotel.WithMeterProvider(meterProvider),
	)
	if err != nil {
		shutdown(context.Background())
		return nil, noop, fmt.Errorf("telemetry: observability: %w", err)
	}

	return obs, shutdown, nil
}

type exporters struct {
	trace  sdktrace.SpanExporter
	metric sdkmetric.Exporter
	closer io.Closer
}

func fileExporters(path string) (*exporters, error) {
	if path == "" {
		return nil, errors.New("telemetry: file is required")
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	return &exporters{trace: traceExporter, metric: metricExporter, closer: out}, nil
}

// otlpExporters sends to a collector at endpoint (host:port) without TLS.
func otlpExporters(endpoint string) (*exporters, error) {
	ctx := context.Background()

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp trace exporter: %w", err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithInsecure(),
		otlpmetrichttp.WithEndpoint(endpoint),
	)
	if err != nil {
		traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
	}
	return &exporters{trace: traceExporter, metric: metricExporter}, nil
}
