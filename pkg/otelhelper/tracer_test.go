package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	tracer, shutdown, err := otelhelper.NewTracer(context.Background(), "area-test", false)
	require.NoError(t, err)

	_, span := otelhelper.StartSpan(context.Background(), tracer, "noop")
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetError_RecordsOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("area-test")

	execution := &models.Execution{ID: "exec-1", ActionInstanceID: "ai-1", CorrelationID: "corr-1", Attempt: 2}

	_, span := otelhelper.StartSpan(context.Background(), tracer, "dispatcher.execute", otelhelper.ExecutionAttributes(execution)...)
	otelhelper.SetError(span, faults.Auth("dispatch", "service not connected", errors.New("boom")), attribute.String(otelhelper.ReactionKey, "http.request"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "service not connected")
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.ExecutionIDKey, "exec-1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int(otelhelper.AttemptKey, 2))

	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
	assert.Contains(t, spans[0].Events()[0].Attributes, attribute.String(otelhelper.ErrorKindKey, "AuthError"))
	assert.Contains(t, spans[0].Events()[0].Attributes, attribute.String(otelhelper.ReactionKey, "http.request"))
}
