package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"storefront/pkg/logger"
)

func TestAddSpanUsesInjectedTracer(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx := InjectTracing(context.Background(), tp.Tracer("test"))

	assert.Empty(t, GetTraceID(ctx))

	ctx, span := AddSpan(ctx, "fetch cart")
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "fetch cart", ended[0].Name())
}

func TestInitTracingWithoutExporter(t *testing.T) {
	tp, shutdown, err := InitTracing(logger.Nop(), Config{ServiceName: "test", Probability: 0.5})
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NoError(t, shutdown(context.Background()))
}
