package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"

	redacted = "[redacted]"
)

// TracingHandler is an [slog.Handler] that adds the span context of the
// record's context and the service identity to every record. Attributes
// named in blockedKeys are redacted, so document content logged by mistake
// never reaches the sink.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner. Service attributes are attached up front so
// they stay at the top level under later WithGroup calls.
func NewTracingHandler(inner slog.Handler, service, env string, appMode AppMode) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &TracingHandler{inner: inner.WithAttrs(attrs)}
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle redacts blocked attributes, adds trace_id and span_id when ctx
// carries a valid span, and delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)

	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))

		return true
	})

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if err := th.inner.Handle(ctx, out); err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs returns a handler with attrs, redacted, on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redact(a)
	}

	return &TracingHandler{inner: th.inner.WithAttrs(clean)}
}

// WithGroup returns a handler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: th.inner.WithGroup(name)}
}

func redact(a slog.Attr) slog.Attr {
	if blockedKeys[a.Key] {
		return slog.String(a.Key, redacted)
	}

	if a.Value.Kind() != slog.KindGroup {
		return a
	}

	group := a.Value.Group()
	clean := make([]any, len(group))

	for i, g := range group {
		clean[i] = redact(g)
	}

	return slog.Group(a.Key, clean...)
}
