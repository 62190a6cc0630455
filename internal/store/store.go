// Package store persists runs, artifacts, and scores. The orchestrator
// treats it as the single source of truth: events are ephemeral, the
// store is not.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chriseon/relay/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateArtifact is returned when an artifact for the same
// (run, pass index) already exists. The orchestrator's sequential
// execution makes this unreachable in normal operation; the store
// enforces it anyway as a backstop.
var ErrDuplicateArtifact = errors.New("artifact already exists for pass")

// Store is the transactional record of runs and their outputs. All
// implementations must be safe for concurrent use by independent runs.
type Store interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context) ([]*models.Run, error)
	// UpdateRun persists run mutations (status, usage, error, timestamps).
	UpdateRun(ctx context.Context, run *models.Run) error

	CreateArtifact(ctx context.Context, artifact *models.Artifact) error
	// ArtifactForPass supports idempotent resumption: it reports whether
	// a pass already produced its single artifact.
	ArtifactForPass(ctx context.Context, runID uuid.UUID, passIndex int) (*models.Artifact, error)
	ArtifactsForRun(ctx context.Context, runID uuid.UUID) ([]*models.Artifact, error)

	CreateScore(ctx context.Context, score *models.Score) error
	ScoresForRun(ctx context.Context, runID uuid.UUID) ([]*models.Score, error)

	ProviderKey(ctx context.Context, provider string) (*models.ProviderKey, error)
	PutProviderKey(ctx context.Context, key *models.ProviderKey) error

	Close() error
}
