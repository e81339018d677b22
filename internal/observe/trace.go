package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/hearken"

// Tracer returns the Hearken tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a child span of whatever ctx carries. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

type segmentKey struct{}

type segmentScope struct {
	userID    string
	segmentID string
}

// WithSegment tags ctx with the user and segment it is processing. Spans
// started by [StartSegmentSpan] and loggers from [Logger] pick the tags up.
func WithSegment(ctx context.Context, userID, segmentID string) context.Context {
	return context.WithValue(ctx, segmentKey{}, segmentScope{userID: userID, segmentID: segmentID})
}

// StartSegmentSpan starts the root span of one segment's processing and
// tags the returned context with [WithSegment].
func StartSegmentSpan(ctx context.Context, userID, segmentID string) (context.Context, trace.Span) {
	ctx = WithSegment(ctx, userID, segmentID)
	return StartSpan(ctx, "listening.segment", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("segment_id", segmentID),
	))
}

// CorrelationID is the trace id in ctx, or "" without a sampled span. The
// ops server echoes it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the trace, user and segment ids
// found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if s, ok := ctx.Value(segmentKey{}).(segmentScope); ok {
		attrs = append(attrs, slog.String("user_id", s.userID))
		if s.segmentID != "" {
			attrs = append(attrs, slog.String("segment_id", s.segmentID))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
