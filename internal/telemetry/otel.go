// Package telemetry wraps OpenTelemetry tracing around stage handler
// invocations and external calls; the orchestrator loop itself emits no
// spans. It never owns exporter wiring, and cmd/remediation-service installs
// no TracerProvider either, so spans go to otel's global provider. It only
// offers span helpers the rest of the core calls unconditionally, nil-safe
// when tracing is disabled.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tejasbhor/migrationguard-ai-sub001/internal/telemetry"

// Tracer returns the package-wide tracer. Safe to call even if no
// TracerProvider has been configured — the global otel default is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartStageSpan starts a span named "issue.stage.<stage>" for a handler
// invocation, tagging it with the issue and merchant for correlation.
func StartStageSpan(ctx context.Context, stage, issueID, merchantKey string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "issue.stage."+stage,
		trace.WithAttributes(
			attribute.String("issue.id", issueID),
			attribute.String("issue.merchant_key", merchantKey),
			attribute.String("issue.stage", stage),
		),
	)
}

// StartDependencySpan starts a span for a call to a named external
// dependency (analyzer, executor, store, bus, kv), the unit the circuit
// breaker registry also keys on.
func StartDependencySpan(ctx context.Context, dependency string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "dependency."+dependency,
		trace.WithAttributes(attribute.String("dependency.name", dependency)),
	)
}

// RecordError marks span as failed and attaches err, mirroring the teacher's
// telemetry.RecordSpanError helper. A nil span or err is a safe no-op.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent attaches a named event with attributes to the current span in
// ctx, mirroring the teacher's telemetry.AddSpanEvent helper.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
