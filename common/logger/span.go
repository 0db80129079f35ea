package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "verdict"

// SpanContext pairs a span with the context that carries it.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan starts a child span of whatever trace ctx carries. The context's
// LogFields (submission, evaluation, report kind) become span attributes so
// traces and logs can be joined on the same keys.
//
//	sc := logger.StartSpan(ctx, "brain.analysis_task")
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	opts = append(opts, trace.WithAttributes(fieldAttributes(GetLogFields(ctx))...))
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// StartSpanFromTraceID continues a trace that crossed the Redis stream. The
// producer's trace id becomes the remote parent; an empty or malformed id
// starts a fresh trace.
func StartSpanFromTraceID(ctx context.Context, traceIDStr string, name string, opts ...trace.SpanStartOption) *SpanContext {
	if traceID, err := trace.TraceIDFromHex(traceIDStr); err == nil {
		remote := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	}
	return StartSpan(ctx, name, opts...)
}

func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// End is a no-op after the first call.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordError marks the span failed.
func (sc *SpanContext) RecordError(err error) {
	if sc.span != nil && err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	}
}

func (sc *SpanContext) SetAttributes(kv ...attribute.KeyValue) {
	if sc.span != nil {
		sc.span.SetAttributes(kv...)
	}
}

// TraceID returns the hex trace id, or "" when tracing is disabled.
func (sc *SpanContext) TraceID() string {
	if sc.span == nil {
		return ""
	}
	if id := sc.span.SpanContext().TraceID(); id.IsValid() {
		return id.String()
	}
	return ""
}

func fieldAttributes(f LogFields) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if f.SubmissionID != nil {
		attrs = append(attrs, attribute.Int64("submission_id", *f.SubmissionID))
	}
	if f.EvaluationID != nil {
		attrs = append(attrs, attribute.Int64("evaluation_id", *f.EvaluationID))
	}
	if f.ReportKind != nil {
		attrs = append(attrs, attribute.String("report_kind", *f.ReportKind))
	}
	if f.MessageID != nil {
		attrs = append(attrs, attribute.String("message_id", *f.MessageID))
	}
	if f.Component != "" {
		attrs = append(attrs, attribute.String("component", f.Component))
	}
	return attrs
}
