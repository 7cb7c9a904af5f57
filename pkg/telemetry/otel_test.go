package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartEnd_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, parent := Start(context.Background(), "pipeline.run", attribute.String("variant", "training"))
	_, child := Start(ctx, "pipeline.load")
	AddSpanEvent(ctx, "file.rejected", attribute.String("file", "badname.csv"))
	End(child, errors.New("boom"))
	End(parent, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "pipeline.load", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "file.rejected", spans[1].Events()[0].Name)
}

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultOTLPConfig("rawgate"))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
