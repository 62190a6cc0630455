package models

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is the persisted output (or error) of one pipeline stage.
// At most one artifact exists per (run, pass index); a failed stage is
// recorded as a single terminal artifact with Error set and empty text.
type Artifact struct {
	ID    uuid.UUID `json:"id"`
	RunID uuid.UUID `json:"run_id"`

	PassIndex int    `json:"pass_index"`
	Role      Role   `json:"role"`
	ModelID   string `json:"model_id"`

	OutputText string `json:"output_text"`
	Usage      Usage  `json:"usage"`
	LatencyMS  int64  `json:"latency_ms"`

	Error *string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Errored reports whether the stage that produced this artifact failed.
func (a *Artifact) Errored() bool {
	return a.Error != nil && *a.Error != ""
}

// Usable reports whether downstream stages may chain on this artifact's
// output text.
func (a *Artifact) Usable() bool {
	return !a.Errored() && a.OutputText != ""
}
