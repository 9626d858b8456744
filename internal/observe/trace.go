package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Aether tracer.
const tracerName = "github.com/MrWong99/aether"

// Tracer returns the package-level [trace.Tracer] for Aether. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
// The status server echoes it in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type attrsKey struct{}

// WithAttrs returns a context whose [Logger] adds attrs to every record.
// Attributes accumulate across nested calls.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// WithSource tags ctx with where a batch of events came from: "stream",
// "command", "history" or "replay".
func WithSource(ctx context.Context, source string) context.Context {
	return WithAttrs(ctx, slog.String("source", source))
}

// Logger returns the default logger enriched for ctx. See [LoggerFrom].
func Logger(ctx context.Context) *slog.Logger {
	return LoggerFrom(ctx, slog.Default())
}

// LoggerFrom returns base with the attributes stored by [WithAttrs] and,
// when ctx carries an active span, its trace_id and span_id.
func LoggerFrom(ctx context.Context, base *slog.Logger) *slog.Logger {
	var args []any
	if attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr); len(attrs) > 0 {
		for _, a := range attrs {
			args = append(args, a)
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(args) == 0 {
		return base
	}
	return base.With(args...)
}

// EndSpan records err on span, if any, and ends it. It is meant for
//
//	defer func() { observe.EndSpan(span, err) }()
//
// at the top of functions with a named error result.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
