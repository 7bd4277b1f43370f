// Package otelhelper wires OpenTelemetry tracing for the dispatcher and the worker.
package otelhelper

import (
	"context"

	"github.com/dukex/area/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Common attribute keys.
	ExecutionIDKey      = "area.execution.id"
	ActionInstanceIDKey = "area.action_instance.id"
	AreaIDKey           = "area.area.id"
	CorrelationIDKey    = "area.correlation.id"
	AttemptKey          = "area.execution.attempt"
	ActivationModeKey   = "area.execution.activation_mode"
	ReactionKey         = "area.reaction"
	StatusKey           = "area.execution.status"
	WorkerIDKey         = "area.worker.id"
	ErrorKindKey        = "area.error.kind"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// NewTracer returns an OTLP/HTTP backed tracer when enabled, and a no-op tracer otherwise.
// The exporter reads the standard OTEL_EXPORTER_OTLP_* environment variables.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string, enabled bool) (trace.Tracer, ShutdownFunc, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer(serviceName), func(context.Context) error { return nil }, nil
	}

	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, nil, err
	}

	return provider.Tracer(serviceName), provider.Shutdown, nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// ExecutionAttributes describes an execution on a span.
func ExecutionAttributes(execution *models.Execution) []attribute.KeyValue {
	if execution == nil {
		return nil
	}

	return []attribute.KeyValue{
		attribute.String(ExecutionIDKey, execution.ID),
		attribute.String(ActionInstanceIDKey, execution.ActionInstanceID),
		attribute.String(AreaIDKey, execution.AreaID),
		attribute.String(CorrelationIDKey, execution.CorrelationID),
		attribute.Int(AttemptKey, execution.Attempt),
		attribute.String(ActivationModeKey, string(execution.ActivationMode)),
	}
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
