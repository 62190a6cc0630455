package utils

import (
	"context"
	"log/slog"

	"github.com/chriseon/relay/internal/events"
)

// EventToSlog emits a pipeline event at debug level, skipping the
// attribute assembly entirely when debug logging is off.
func EventToSlog(event events.Event) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{
		"type", event.Type,
		"run_id", event.RunID,
	}
	if event.PassIndex > 0 {
		attrs = append(attrs, "pass", event.PassIndex)
	}
	for _, key := range []string{"model", "error", "chunks", "estimated_tokens", "status"} {
		attrs = addIf(attrs, key, event.Payload)
	}

	slog.Debug("pipeline event", attrs...)
}

func addIf(attrs []any, name string, payload map[string]any) []any {
	if v, ok := payload[name]; ok {
		attrs = append(attrs, name, v)
	}
	return attrs
}
