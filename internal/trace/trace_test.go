package trace

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/complai/complai/internal/log"
)

func TestSlogEmitter_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{Level: slog.LevelDebug})
	e := NewSlogEmitter(logger)

	e.Emit(context.Background(), EventSessionResolved,
		slog.String("session_id", "abc"),
		slog.Bool("created", true),
	)

	out := buf.String()
	if !strings.Contains(out, EventSessionResolved) {
		t.Errorf("expected event name in output, got %q", out)
	}
	if !strings.Contains(out, "session_id=abc") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestNopEmitter(t *testing.T) {
	var e Emitter = NopEmitter{}
	e.Emit(context.Background(), EventPersisted, slog.String("k", "v"))
}

func TestOtelEmitter_NoSpanFallsBackToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{Level: slog.LevelDebug})
	e := NewOtelEmitter(logger)

	e.Emit(context.Background(), EventGenerationStarted, slog.Int("max_tokens", 1000))

	if !strings.Contains(buf.String(), EventGenerationStarted) {
		t.Errorf("expected slog fallback output, got %q", buf.String())
	}
}

func TestSetupOtel_EmptyEndpointDisabled(t *testing.T) {
	shutdown, err := SetupOtel(context.Background(), OtelConfig{}, log.NewNop())
	if err != nil {
		t.Fatalf("SetupOtel: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
