package webapi

import (
	"time"

	"github.com/chriseon/relay/internal/models"
)

// CreateRunRequest is the POST /api/runs body.
type CreateRunRequest struct {
	Query  string                 `json:"query"`
	Models map[models.Slot]string `json:"models"`

	Options CreateRunOptions `json:"options"`
}

// CreateRunOptions mirrors the caller-settable generation options.
type CreateRunOptions struct {
	OutputLength string                 `json:"output_length,omitempty"`
	Temperature  *float64               `json:"temperature,omitempty"`
	TopP         *float64               `json:"top_p,omitempty"`
	Instructions string                 `json:"instructions,omitempty"`
	StagePrompts map[models.Slot]string `json:"stage_prompts,omitempty"`
}

// RunDetail is the full view of a run with its artifacts and scores.
type RunDetail struct {
	*models.Run
	Artifacts []*models.Artifact `json:"artifacts"`
	Scores    []*models.Score    `json:"scores"`
}

// SummaryResponse is the aggregate view across all runs.
type SummaryResponse struct {
	TotalRuns   int            `json:"total_runs"`
	ByStatus    map[string]int `json:"by_status"`
	TotalTokens int            `json:"total_tokens"`
	AvgDuration float64        `json:"avg_duration_seconds"`
	AvgScore    float64        `json:"avg_score"`
	ScoreStdDev float64        `json:"score_std_dev"`
	LastRunAt   *time.Time     `json:"last_run_at,omitempty"`
}

// PutKeyRequest is the PUT /api/keys/{provider} body.
type PutKeyRequest struct {
	Secret  string `json:"secret"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// KeyView is a provider key as exposed by the API. The secret never
// leaves the store.
type KeyView struct {
	Provider  string    `json:"provider"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
