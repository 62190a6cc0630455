package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chriseon/relay/internal/events"
	"github.com/chriseon/relay/internal/store"
)

// HandleRunEvents streams a run's lifecycle events as server-sent
// events. Events are ephemeral: a client that connects after the run
// reached a terminal state gets a single terminal event built from the
// store and the stream ends.
func (h *Handlers) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before checking for terminal state so no event falls
	// between the check and the subscription.
	ch, cancel := h.bus.Subscribe(id.String(), 0)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if run.Status.Terminal() {
		writeSSE(w, events.New(events.RunCompleted, id.String(), 0, map[string]any{
			"status": run.Status,
			"usage":  run.TotalUsage,
			"replay": true,
		}))
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
}
