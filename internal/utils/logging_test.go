package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chriseon/relay/internal/events"
)

func TestEventToSlogRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	EventToSlog(events.New(events.ArtifactChunk, "run-1", 1, map[string]any{"model": "openai:gpt-4o"}))
	assert.Empty(t, buf.String(), "no output below debug level")

	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	EventToSlog(events.New(events.ArtifactError, "run-1", 2, map[string]any{"error": "boom"}))
	out := buf.String()
	assert.Contains(t, out, "artifact.error")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "boom")
}
