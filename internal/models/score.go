package models

import (
	"time"

	"github.com/google/uuid"
)

// Dimensions is the per-dimension score breakdown. Consensus and
// FactualAccuracy are pointers because they are not always computable:
// a nil dimension is excluded from the weighted total rather than
// counted as zero.
type Dimensions struct {
	Alignment       float64  `json:"alignment"`
	Completeness    float64  `json:"completeness"`
	Consensus       *float64 `json:"consensus"`
	FactualAccuracy *float64 `json:"factual_accuracy"`
}

// ScoreMeta carries auxiliary measurements taken while scoring.
type ScoreMeta struct {
	Words int `json:"words"`
}

// Score is the heuristic quality assessment of one artifact. It is
// owned 1:1 by its artifact and never mutated after creation.
type Score struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	ArtifactID uuid.UUID `json:"artifact_id"`

	Total      float64    `json:"total"`
	Dimensions Dimensions `json:"dimensions"`
	Notes      []string   `json:"notes,omitempty"`
	Meta       ScoreMeta  `json:"meta"`

	CreatedAt time.Time `json:"created_at"`
}
