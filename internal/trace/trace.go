// Package trace provides the event-emission capability used at component
// boundaries (session-resolved, retrieval-performed, generation-started, ...).
//
// The core depends only on the [Emitter] interface; backends are injected.
// The default emitter logs events through slog, and an OpenTelemetry-backed
// emitter records them as span events exported over OTLP (see otel.go).
package trace

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Emitter receives named events with structured key/value payloads.
// Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event string, attrs ...slog.Attr)
}

// Event names emitted by the chat pipeline.
const (
	EventSessionResolved     = "session-resolved"
	EventRetrievalPerformed  = "retrieval-performed"
	EventGenerationStarted   = "generation-started"
	EventGenerationCompleted = "generation-completed"
	EventFilterApplied       = "filter-applied"
	EventPersisted           = "persisted"
)

// SlogEmitter logs events via slog at debug level.
type SlogEmitter struct {
	Logger *slog.Logger
}

// NewSlogEmitter creates an Emitter backed by logger.
// A nil logger falls back to slog.Default().
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{Logger: logger}
}

// Emit implements Emitter.
func (e *SlogEmitter) Emit(ctx context.Context, event string, attrs ...slog.Attr) {
	e.Logger.LogAttrs(ctx, slog.LevelDebug, event, attrs...)
}

// NopEmitter discards all events. Useful in tests.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(context.Context, string, ...slog.Attr) {}

// OtelEmitter records events on the active span, falling back to slog when no
// span is recording.
type OtelEmitter struct {
	logger *slog.Logger
}

// NewOtelEmitter creates an OpenTelemetry-backed emitter.
func NewOtelEmitter(logger *slog.Logger) *OtelEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OtelEmitter{logger: logger}
}

// Emit implements Emitter.
func (e *OtelEmitter) Emit(ctx context.Context, event string, attrs ...slog.Attr) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		kvs := make([]attribute.KeyValue, 0, len(attrs))
		for _, a := range attrs {
			kvs = append(kvs, attribute.String(a.Key, a.Value.String()))
		}
		span.AddEvent(event, oteltrace.WithAttributes(kvs...))
	}
	e.logger.LogAttrs(ctx, slog.LevelDebug, event, attrs...)
}
