// Package webapi exposes the pipeline engine over HTTP: run creation
// and inspection, live event streaming, and BYOK key management.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chriseon/relay/internal/events"
	"github.com/chriseon/relay/internal/metrics"
	"github.com/chriseon/relay/internal/models"
	"github.com/chriseon/relay/internal/orchestration"
	"github.com/chriseon/relay/internal/store"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 256 * 1024

// Executor runs a queued run to completion. Implemented by
// orchestration.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, runID uuid.UUID) error
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	store  store.Store
	bus    *events.Bus
	exec   Executor
	logger *slog.Logger
}

// NewHandlers creates handlers over the given store, bus, and executor.
func NewHandlers(st store.Store, bus *events.Bus, exec Executor, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: st, bus: bus, exec: exec, logger: logger}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleCreateRun validates the request, persists a queued run, and
// starts executing it in the background. The response is the queued
// run; callers follow progress over the events endpoint.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := orchestration.NewRun(req.Query, req.Models, models.GenOptions{
		OutputLength: models.NormalizeOutputLength(req.Options.OutputLength),
		Temperature:  req.Options.Temperature,
		TopP:         req.Options.TopP,
		Instructions: req.Options.Instructions,
		StagePrompts: req.Options.StagePrompts,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateRun(r.Context(), run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.bus.Publish(events.New(events.RunQueued, run.ID.String(), 0, map[string]any{
		"models": run.SelectedModels,
	}))

	go func() {
		// Detached from the request context: the run outlives it.
		if err := h.exec.Execute(context.Background(), run.ID); err != nil {
			h.logger.Error("run execution failed", "run_id", run.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, run)
}

// HandleRuns returns all runs, newest first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleRunDetail returns one run with its artifacts and scores.
func (h *Handlers) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
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

	artifacts, err := h.store.ArtifactsForRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	scores, err := h.store.ScoresForRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RunDetail{Run: run, Artifacts: artifacts, Scores: scores})
}

// HandleSummary returns aggregate metrics across all runs.
func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := SummaryResponse{
		TotalRuns: len(runs),
		ByStatus:  map[string]int{},
	}
	var (
		durations float64
		finished  int
		totals    []float64
	)
	for _, run := range runs {
		resp.ByStatus[string(run.Status)]++
		resp.TotalTokens += run.TotalUsage.Total()
		if resp.LastRunAt == nil || run.CreatedAt.After(*resp.LastRunAt) {
			t := run.CreatedAt
			resp.LastRunAt = &t
		}
		if run.StartedAt != nil && run.EndedAt != nil {
			durations += run.EndedAt.Sub(*run.StartedAt).Seconds()
			finished++
		}
		scores, err := h.store.ScoresForRun(r.Context(), run.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, s := range scores {
			totals = append(totals, s.Total)
		}
	}
	if finished > 0 {
		resp.AvgDuration = durations / float64(finished)
	}
	resp.AvgScore = metrics.Mean(totals)
	resp.ScoreStdDev = metrics.StdDev(totals)

	writeJSON(w, http.StatusOK, resp)
}

// HandlePutKey stores or replaces a BYOK secret for a provider.
func (h *Handlers) HandlePutKey(w http.ResponseWriter, r *http.Request) {
	providerName := strings.ToLower(r.PathValue("provider"))
	if providerName == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	var req PutKeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Secret) == "" {
		writeError(w, http.StatusBadRequest, "secret is required")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	key := &models.ProviderKey{
		ID:        uuid.New(),
		Provider:  providerName,
		Enabled:   enabled,
		Secret:    req.Secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.PutProviderKey(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, KeyView{
		Provider:  key.Provider,
		Enabled:   key.Enabled,
		CreatedAt: key.CreatedAt,
	})
}

// HandleGetKey reports whether a BYOK key exists for a provider. The
// secret itself is never returned.
func (h *Handlers) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	providerName := strings.ToLower(r.PathValue("provider"))

	key, err := h.store.ProviderKey(r.Context(), providerName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no key for provider")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, KeyView{
		Provider:  key.Provider,
		Enabled:   key.Enabled,
		CreatedAt: key.CreatedAt,
	})
}

func (h *Handlers) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/summary", h.HandleSummary)
	mux.HandleFunc("GET /api/runs", h.HandleRuns)
	mux.HandleFunc("POST /api/runs", h.HandleCreateRun)
	mux.HandleFunc("GET /api/runs/{id}", h.HandleRunDetail)
	mux.HandleFunc("GET /api/runs/{id}/events", h.HandleRunEvents)
	mux.HandleFunc("PUT /api/keys/{provider}", h.HandlePutKey)
	mux.HandleFunc("GET /api/keys/{provider}", h.HandleGetKey)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
