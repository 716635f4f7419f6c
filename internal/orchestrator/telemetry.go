package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"finpal/pkg/logging"
)

const instrumentationName = "finpal/internal/orchestrator"

// telemetry records provider startup and tool call spans and metrics.
type telemetry struct {
	tracer trace.Tracer

	providerStarts   metric.Int64Counter
	providerDuration metric.Float64Histogram
	toolCalls        metric.Int64Counter
	toolDuration     metric.Float64Histogram
}

func newTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) *telemetry {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	meter := mp.Meter(instrumentationName)

	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.providerStarts, err = meter.Int64Counter("finpal.provider.starts",
		metric.WithDescription("Number of provider start attempts by outcome"),
	); err != nil {
		logging.Warn("Orchestrator", "Creating provider start counter: %v", err)
	}
	if t.providerDuration, err = meter.Float64Histogram("finpal.provider.start.duration",
		metric.WithDescription("Duration of provider initialization and discovery in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		logging.Warn("Orchestrator", "Creating provider duration histogram: %v", err)
	}
	if t.toolCalls, err = meter.Int64Counter("finpal.tool.calls",
		metric.WithDescription("Number of tool invocations by outcome"),
	); err != nil {
		logging.Warn("Orchestrator", "Creating tool call counter: %v", err)
	}
	if t.toolDuration, err = meter.Float64Histogram("finpal.tool.duration",
		metric.WithDescription("Duration of tool invocations in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		logging.Warn("Orchestrator", "Creating tool duration histogram: %v", err)
	}
	return t
}

func (t *telemetry) startProvider(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "provider.start", trace.WithAttributes(
		attribute.String("provider.name", name),
	))
}

func (t *telemetry) endProvider(ctx context.Context, span trace.Span, name string, outcome Outcome, toolCount int, elapsed time.Duration, err error) {
	span.SetAttributes(
		attribute.String("provider.outcome", string(outcome)),
		attribute.Int("provider.tools", toolCount),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("provider", name),
		attribute.String("outcome", string(outcome)),
	)
	if t.providerStarts != nil {
		t.providerStarts.Add(ctx, 1, attrs)
	}
	if t.providerDuration != nil {
		t.providerDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (t *telemetry) startCall(ctx context.Context, tool, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("provider.name", provider),
	))
}

func (t *telemetry) endCall(ctx context.Context, span trace.Span, tool, provider string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	if t.toolCalls != nil {
		t.toolCalls.Add(ctx, 1, attrs)
	}
	if t.toolDuration != nil {
		t.toolDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
