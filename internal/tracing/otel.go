package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

var global struct {
	once     sync.Once
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
	err      error
}

// InitOpenTelemetry installs the process-wide tracer provider for the named
// service. Only the first call does any work; later calls return the outcome
// of the first.
func InitOpenTelemetry(serviceName string) error {
	global.once.Do(func() {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(serviceName),
			),
		)
		if err != nil {
			global.err = fmt.Errorf("failed to build trace resource: %w", err)
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)

		global.mu.Lock()
		global.provider = tp
		global.mu.Unlock()
	})
	return global.err
}

// ShutdownOpenTelemetry flushes pending spans and releases the provider.
// A no-op when InitOpenTelemetry never succeeded.
func ShutdownOpenTelemetry(ctx context.Context) error {
	global.mu.Lock()
	tp := global.provider
	global.provider = nil
	global.mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span on the named tracer. Contexts without a trace ID get
// one derived from the span, so log lines correlate with the trace.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}
