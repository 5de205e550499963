// Package tracing exposes the application tracer. Pipeline stages create a
// span per step so a slow run can be attributed to fetch, selection, cascade,
// rendering or delivery.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the marketbrief application.
var tracer = otel.Tracer("marketbrief")

// GetTracer returns the global tracer for creating spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.fetch")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// Init installs an SDK tracer provider and returns its shutdown function.
// Without an exporter configured the spans stay in-process; the provider
// still gives stages real span contexts for log correlation.
func Init() func() error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("marketbrief")
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
}
