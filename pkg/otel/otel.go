// Package otel wires OpenTelemetry tracing for the storefront binaries.
package otel

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"storefront/pkg/logger"
)

// Config configures tracing.
type Config struct {
	ServiceName string
	// Host is the OTLP gRPC collector endpoint. Empty disables export.
	Host        string
	Probability float64
}

type ctxKey int

const tracerKey ctxKey = 1

// InitTracing installs a global tracer provider and returns it with its
// shutdown function.
func InitTracing(log *logger.Logger, cfg Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.Probability))),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName))),
	}

	if cfg.Host != "" {
		exporter, err := otlptrace.New(context.Background(),
			otlptracegrpc.NewClient(
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithEndpoint(cfg.Host),
			),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		log.Info(context.Background(), "tracing enabled", "host", cfg.Host, "probability", cfg.Probability)
	} else {
		log.Info(context.Background(), "tracing export disabled")
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, tp.Shutdown, nil
}

func sampler(p float64) sdktrace.Sampler {
	switch {
	case p >= 1:
		return sdktrace.AlwaysSample()
	case p <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(p)
	}
}

// InjectTracing stores tracer in ctx for later AddSpan calls.
func InjectTracing(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

// AddSpan starts a span named name using the tracer in ctx, or the global
// provider when none was injected.
func AddSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer, ok := ctx.Value(tracerKey).(trace.Tracer)
	if !ok || tracer == nil {
		tracer = otel.Tracer("storefront")
	}
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}

// GetTraceID returns the trace id of the span in ctx, if any.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// InjectHeaders writes the span context of ctx into h.
func InjectHeaders(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHeaders returns ctx carrying the remote span context found in h.
func ExtractHeaders(ctx context.Context, h http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(h))
}
