package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/chriseon/relay/internal/models"
)

// MemoryStore is an in-memory Store, used by tests and by the CLI's
// one-shot mode where nothing needs to outlive the process.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]models.Run
	artifacts map[uuid.UUID][]models.Artifact
	scores    map[uuid.UUID][]models.Score
	keys      map[string]models.ProviderKey
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[uuid.UUID]models.Run),
		artifacts: make(map[uuid.UUID][]models.Artifact),
		scores:    make(map[uuid.UUID][]models.Score),
		keys:      make(map[string]models.ProviderKey),
	}
}

func (m *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRun(&run)
	return &out, nil
}

func (m *MemoryStore) ListRuns(_ context.Context) ([]*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Run, 0, len(m.runs))
	for _, run := range m.runs {
		r := cloneRun(&run)
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *MemoryStore) CreateArtifact(_ context.Context, artifact *models.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts[artifact.RunID] {
		if a.PassIndex == artifact.PassIndex {
			return ErrDuplicateArtifact
		}
	}
	m.artifacts[artifact.RunID] = append(m.artifacts[artifact.RunID], *artifact)
	return nil
}

func (m *MemoryStore) ArtifactForPass(_ context.Context, runID uuid.UUID, passIndex int) (*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.artifacts[runID] {
		if a.PassIndex == passIndex {
			out := a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ArtifactsForRun(_ context.Context, runID uuid.UUID) ([]*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.artifacts[runID]
	out := make([]*models.Artifact, 0, len(list))
	for _, a := range list {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PassIndex < out[j].PassIndex })
	return out, nil
}

func (m *MemoryStore) CreateScore(_ context.Context, score *models.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[score.RunID] = append(m.scores[score.RunID], *score)
	return nil
}

func (m *MemoryStore) ScoresForRun(_ context.Context, runID uuid.UUID) ([]*models.Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.scores[runID]
	out := make([]*models.Score, 0, len(list))
	for _, s := range list {
		s := s
		out = append(out, &s)
	}
	return out, nil
}

func (m *MemoryStore) ProviderKey(_ context.Context, provider string) (*models.ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[provider]
	if !ok {
		return nil, ErrNotFound
	}
	out := key
	return &out, nil
}

func (m *MemoryStore) PutProviderKey(_ context.Context, key *models.ProviderKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.Provider] = *key
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneRun(run *models.Run) models.Run {
	out := *run
	out.SelectedModels = make(map[models.Slot]string, len(run.SelectedModels))
	for k, v := range run.SelectedModels {
		out.SelectedModels[k] = v
	}
	if run.Options.StagePrompts != nil {
		out.Options.StagePrompts = make(map[models.Slot]string, len(run.Options.StagePrompts))
		for k, v := range run.Options.StagePrompts {
			out.Options.StagePrompts[k] = v
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
