package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// allowedPrefixes are attribute key prefixes that pass through the filter.
var allowedPrefixes = []string{
	"narrowdown.",
	"error.",
	"exception.",
	"lsh.",
	"storage.",
	"document.",
	"query.",
	"snapshot.",
}

// blockedKeys are stripped even when a prefix allows them. Document text
// and payloads are user content and never leave the process.
var blockedKeys = map[string]bool{
	"document.text":       true,
	"document.data":       true,
	"document.exact_part": true,
}

// attributeFilter wraps a SpanProcessor and hands it spans whose attributes,
// including those on span events, have been reduced to the allow-list.
type attributeFilter struct {
	next   sdktrace.SpanProcessor
	logger *slog.Logger
	warned sync.Map
}

// NewAttributeFilter returns a SpanProcessor that filters span and event
// attributes through an allow-list. When logger is non-nil, each dropped
// key is logged once as a warning.
func NewAttributeFilter(next sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{next: next, logger: logger}
}

func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.next.OnStart(parent, s)
}

// OnEnd forwards a filtered read-only view of s.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.next.OnEnd(&filteredSpan{ReadOnlySpan: s, filter: f})
}

func (f *attributeFilter) Shutdown(ctx context.Context) error {
	if err := f.next.Shutdown(ctx); err != nil {
		return fmt.Errorf("span filter shutdown: %w", err)
	}

	return nil
}

func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	if err := f.next.ForceFlush(ctx); err != nil {
		return fmt.Errorf("span filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) allowed(key string) bool {
	if blockedKeys[key] {
		f.drop(key)

		return false
	}

	if key == "error" {
		return true
	}

	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}

	f.drop(key)

	return false
}

func (f *attributeFilter) drop(key string) {
	if f.logger == nil {
		return
	}

	if _, seen := f.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}

	f.logger.Warn("span attribute dropped", "key", key)
}

func (f *attributeFilter) keep(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		if f.allowed(string(kv.Key)) {
			out = append(out, kv)
		}
	}

	return out
}

type filteredSpan struct {
	sdktrace.ReadOnlySpan

	filter *attributeFilter
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.filter.keep(s.ReadOnlySpan.Attributes())
}

func (s *filteredSpan) Events() []sdktrace.Event {
	events := s.ReadOnlySpan.Events()
	out := make([]sdktrace.Event, len(events))

	for i, ev := range events {
		ev.Attributes = s.filter.keep(ev.Attributes)
		out[i] = ev
	}

	return out
}
