// Package telemetry wires up structured logging and the OpenTelemetry SDK
// for the coordination backend. Tracer/meter construction follows the
// teacher's otel.Tracer/otel.Meter-per-package convention (grounded on
// internal/storage/dolt/store.go's doltTracer/doltMeter globals upstream),
// generalized here into a single setup step a binary calls once at startup.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fieldshare/surplus"

// Config controls exporter selection. The stdout exporters are the
// zero-dependency default suitable for local runs and CI; a real
// deployment wires an OTLP exporter at the same call sites (not included
// here, since SPEC_FULL.md names no collector endpoint).
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Providers bundles the constructed SDK providers plus a shutdown hook.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	Shutdown       func(ctx context.Context) error
}

// Setup builds the logger and the otel SDK providers and registers them as
// the process-global providers (otel.SetTracerProvider / SetMeterProvider),
// matching how the teacher's dolt store obtains otel.Tracer(...) /
// otel.Meter(...) without threading a provider through every constructor.
func Setup(cfg Config) (*zap.Logger, *Providers, error) {
	log, err := NewLogger(cfg.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("merge resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, fmt.Errorf("build trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, fmt.Errorf("build metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExp)),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}

	return log, &Providers{TracerProvider: tp, MeterProvider: mp, Shutdown: shutdown}, nil
}

// NewLogger builds a zap logger: development (console, debug level) or
// production (JSON, info level) depending on environment name.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "development" || environment == "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Tracer returns the package-scoped tracer, mirroring the teacher's
// package-level otel.Tracer(...) var.
func Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }
