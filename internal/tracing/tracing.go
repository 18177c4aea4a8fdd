// Package tracing wires OpenTelemetry spans around runs and stage
// attempts. It is deliberately thin: one tracer provider, one span per
// run, one child span per stage attempt.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps a configured TracerProvider and exposes the one
// tracer the runner uses.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewStdout returns a Provider that exports spans to stdout, for local
// inspection and tests. Pass enabled=false to get a no-op provider
// that still satisfies the interface but emits nothing.
func NewStdout(enabled bool) (*Provider, error) {
	if !enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		return &Provider{tp: tp, tracer: tp.Tracer("phasetracker")}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		"",
		semconv.ServiceName("phasetracker"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer("phasetracker")}, nil
}

// Shutdown flushes and releases the underlying tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// StartRun begins the top-level span for one runner invocation.
func (p *Provider) StartRun(ctx context.Context, runID, through string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("through", through),
	))
}

// StartStageAttempt begins a child span for one stage attempt.
func (p *Provider) StartStageAttempt(ctx context.Context, stage string, attempt int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "stage_attempt", trace.WithAttributes(
		attribute.String("stage", stage),
		attribute.Int("attempt", attempt),
	))
}

// EndOK closes span successfully.
func EndOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
	span.End()
}

// EndError records err on span, marks it failed, and closes it.
func EndError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
