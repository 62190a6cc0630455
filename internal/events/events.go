// Package events provides the run-scoped progress event bus: an
// in-memory fan-out from the orchestrator to any number of live
// observers. Events are ephemeral; a late joiner reconstructs state
// from the store instead.
package events

import "time"

// Type identifies the kind of lifecycle event.
type Type string

const (
	RunQueued    Type = "run.queued"
	RunStarted   Type = "run.started"
	RunCompleted Type = "run.completed"

	ArtifactPlanned  Type = "artifact.planned"
	ArtifactStarted  Type = "artifact.started"
	ArtifactChunk    Type = "artifact.chunk"
	ArtifactProgress Type = "artifact.progress"
	ArtifactCreated  Type = "artifact.created"
	ArtifactError    Type = "artifact.error"

	ScoreStarted Type = "score.started"
	ScoreCreated Type = "score.created"
)

// Event is one lifecycle notification for a run.
type Event struct {
	Type      Type           `json:"type"`
	RunID     string         `json:"run_id"`
	PassIndex int            `json:"pass_index,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Time      time.Time      `json:"time"`
}

// New creates an event stamped with the current time.
func New(t Type, runID string, passIndex int, payload map[string]any) Event {
	return Event{
		Type:      t,
		RunID:     runID,
		PassIndex: passIndex,
		Payload:   payload,
		Time:      time.Now().UTC(),
	}
}
