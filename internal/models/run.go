// Package models defines the domain types shared across the pipeline
// engine: runs, artifacts, scores, and the stage vocabulary.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OutputLength is the requested response size class. It is advisory:
// it shapes prompts and token caps but is never enforced post-hoc.
type OutputLength string

const (
	LengthBrief         OutputLength = "brief"
	LengthStandard      OutputLength = "standard"
	LengthComprehensive OutputLength = "comprehensive"
)

// NormalizeOutputLength maps arbitrary input to a known class,
// defaulting to standard.
func NormalizeOutputLength(s string) OutputLength {
	switch OutputLength(strings.ToLower(strings.TrimSpace(s))) {
	case LengthBrief:
		return LengthBrief
	case LengthComprehensive:
		return LengthComprehensive
	default:
		return LengthStandard
	}
}

// GenOptions are the caller-supplied generation options for a run.
type GenOptions struct {
	OutputLength OutputLength `json:"output_length"`
	Temperature  *float64     `json:"temperature,omitempty"`
	TopP         *float64     `json:"top_p,omitempty"`

	// MaxToolIterations bounds how many tool-use round trips an adapter
	// may take within a single stage invocation.
	MaxToolIterations int `json:"max_tool_iterations,omitempty"`

	// Instructions is the system header prepended to every stage prompt.
	Instructions string `json:"instructions,omitempty"`

	// StagePrompts holds per-stage extra instructions, keyed by slot.
	// They are append-only: they can never replace the built-in chaining
	// templates.
	StagePrompts map[Slot]string `json:"stage_prompts,omitempty"`
}

// Usage is token accounting for one provider call or a whole run.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Run is one end-to-end pipeline execution for a single query.
// Only the orchestrator mutates a Run after creation.
type Run struct {
	ID     uuid.UUID `json:"id"`
	Query  string    `json:"query"`
	Status RunStatus `json:"status"`

	// SelectedModels maps stage slot (a/b/c) to a "provider:model" ref.
	SelectedModels map[Slot]string `json:"selected_models"`

	Options    GenOptions `json:"options"`
	TotalUsage Usage      `json:"total_usage"`

	// Error is set only when the run itself fails (infrastructure),
	// never for individual stage errors.
	Error *string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ParseModelRef splits a "provider:model" reference. The provider part
// is lowercased; the model part is kept verbatim (model names may
// themselves contain colons).
func ParseModelRef(ref string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(ref, ":")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model ref %q: want provider:model", ref)
	}
	return strings.ToLower(strings.TrimSpace(provider)), model, nil
}
