package diagnostics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/buildbuildio/fusion"

// Telemetry reports operations and nodes as OpenTelemetry spans and logs node failures.
type Telemetry struct {
	tracer trace.Tracer
	logger *zap.Logger
}

var _ Sink = &Telemetry{}

func NewTelemetry(tp trace.TracerProvider, logger *zap.Logger) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telemetry{
		tracer: tp.Tracer(instrumentationName),
		logger: logger,
	}
}

func (t *Telemetry) StartOperation(ctx context.Context, name, kind string) (context.Context, Scope) {
	ctx, span := t.tracer.Start(ctx, "fusion.operation", trace.WithAttributes(
		attribute.String("graphql.operation.name", name),
		attribute.String("graphql.operation.type", kind),
	))
	return ctx, &spanScope{span: span}
}

func (t *Telemetry) StartNode(ctx context.Context, node NodeInfo) (context.Context, Scope) {
	ctx, span := t.tracer.Start(ctx, "fusion.node", trace.WithAttributes(
		attribute.Int("fusion.node.id", node.ID),
		attribute.String("fusion.node.kind", node.Kind),
		attribute.String("fusion.source", node.Source),
		attribute.String("fusion.path", node.Path),
	))
	return ctx, &spanScope{span: span}
}

func (t *Telemetry) NodeError(ctx context.Context, node NodeInfo, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)

	t.logger.Warn("execution node failed",
		zap.Int("node", node.ID),
		zap.String("source", node.Source),
		zap.String("path", node.Path),
		zap.String("trace", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
}

type spanScope struct {
	span trace.Span
}

func (s *spanScope) TraceID() string {
	return s.span.SpanContext().TraceID().String()
}

func (s *spanScope) SpanID() string {
	return s.span.SpanContext().SpanID().String()
}

func (s *spanScope) End(status Status, duration time.Duration) {
	s.span.SetAttributes(
		attribute.String("fusion.status", string(status)),
		attribute.Int64("fusion.duration_ns", duration.Nanoseconds()),
	)
	if status == StatusFailed {
		s.span.SetStatus(codes.Error, "node failed")
	}
	s.span.End()
}
