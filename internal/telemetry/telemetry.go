package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName scopes the tracer handed to the services.
const instrumentationName = "github.com/choibumgyu/HYU-CDW"

// Service identifies the process in exported telemetry.
type Service struct {
	Name    string
	Version string
	// DBSystem is the warehouse engine ("postgresql", "mssql").
	DBSystem string
}

func (s Service) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.Name),
		semconv.ServiceVersion(s.Version),
	}
	if s.DBSystem != "" {
		attrs = append(attrs, attribute.String("db.system", s.DBSystem))
	}
	return attrs
}

// Provider owns the SDK trace and metric providers registered by Init.
type Provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init registers OTLP gRPC trace and metric pipelines as the global providers.
// The exporters read OTEL_EXPORTER_OTLP_ENDPOINT themselves.
func Init(ctx context.Context, svc Service) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(svc.attributes()...))
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	p := &Provider{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(res),
		),
	}

	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	// W3C trace context only travels over the HTTP transport.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return p, nil
}

// Tracer returns the tracer the services record spans with. A nil provider
// yields a noop tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return NoopTracer()
	}
	return p.tp.Tracer(instrumentationName)
}

// Shutdown flushes pending spans and metrics. Both providers are shut down
// even when the first one fails.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down meter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NoopTracer is used when OTEL_ENABLED is off.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
