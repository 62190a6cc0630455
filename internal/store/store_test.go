package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriseon/relay/internal/models"
)

// each implements the contract tests against every Store implementation.
func each(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(filepath.Join(t.TempDir(), "relay.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func newTestRun() *models.Run {
	return &models.Run{
		ID:     uuid.New(),
		Query:  "Explain quantum computing",
		Status: models.StatusQueued,
		SelectedModels: map[models.Slot]string{
			models.SlotA: "openai:gpt-4o-mini",
			models.SlotB: "anthropic:claude-sonnet-4-5",
			models.SlotC: "xai:grok-3",
		},
		Options: models.GenOptions{
			OutputLength: models.LengthStandard,
			StagePrompts: map[models.Slot]string{models.SlotB: "cite sources"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestRunRoundTrip(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := newTestRun()
		require.NoError(t, s.CreateRun(ctx, run))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.Query, got.Query)
		assert.Equal(t, run.SelectedModels, got.SelectedModels)
		assert.Equal(t, "cite sources", got.Options.StagePrompts[models.SlotB])
		assert.Equal(t, models.StatusQueued, got.Status)
		assert.Nil(t, got.Error)

		_, err = s.GetRun(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateRunLifecycle(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := newTestRun()
		require.NoError(t, s.CreateRun(ctx, run))

		now := time.Now().UTC().Truncate(time.Millisecond)
		run.Status = models.StatusRunning
		run.StartedAt = &now
		run.TotalUsage = models.Usage{InputTokens: 10, OutputTokens: 30}
		require.NoError(t, s.UpdateRun(ctx, run))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRunning, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.True(t, got.StartedAt.Equal(now))
		assert.Equal(t, 40, got.TotalUsage.Total())

		unknown := newTestRun()
		assert.ErrorIs(t, s.UpdateRun(ctx, unknown), ErrNotFound)
	})
}

func TestArtifactUniquenessPerPass(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := newTestRun()
		require.NoError(t, s.CreateRun(ctx, run))

		art := &models.Artifact{
			ID:         uuid.New(),
			RunID:      run.ID,
			PassIndex:  1,
			Role:       models.RoleDraft,
			ModelID:    "openai:gpt-4o-mini",
			OutputText: "draft text",
			Usage:      models.Usage{InputTokens: 5, OutputTokens: 7},
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, s.CreateArtifact(ctx, art))

		dup := *art
		dup.ID = uuid.New()
		assert.ErrorIs(t, s.CreateArtifact(ctx, &dup), ErrDuplicateArtifact)

		got, err := s.ArtifactForPass(ctx, run.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "draft text", got.OutputText)
		assert.Equal(t, models.RoleDraft, got.Role)

		_, err = s.ArtifactForPass(ctx, run.ID, 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestArtifactsOrderedByPass(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := newTestRun()
		require.NoError(t, s.CreateRun(ctx, run))

		errMsg := "timeout after 30s"
		for _, a := range []*models.Artifact{
			{ID: uuid.New(), RunID: run.ID, PassIndex: 3, Role: models.RoleSynthesis, ModelID: "m", CreatedAt: time.Now().UTC()},
			{ID: uuid.New(), RunID: run.ID, PassIndex: 1, Role: models.RoleDraft, ModelID: "m", Error: &errMsg, CreatedAt: time.Now().UTC()},
			{ID: uuid.New(), RunID: run.ID, PassIndex: 2, Role: models.RoleRefine, ModelID: "m", OutputText: "x", CreatedAt: time.Now().UTC()},
		} {
			require.NoError(t, s.CreateArtifact(ctx, a))
		}

		got, err := s.ArtifactsForRun(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{got[0].PassIndex, got[1].PassIndex, got[2].PassIndex})
		require.NotNil(t, got[0].Error)
		assert.Equal(t, "timeout after 30s", *got[0].Error)
	})
}

func TestScoreRoundTrip(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := newTestRun()
		require.NoError(t, s.CreateRun(ctx, run))

		art := &models.Artifact{
			ID: uuid.New(), RunID: run.ID, PassIndex: 1,
			Role: models.RoleDraft, ModelID: "m", OutputText: "x",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.CreateArtifact(ctx, art))

		consensus := 0.75
		score := &models.Score{
			ID:         uuid.New(),
			RunID:      run.ID,
			ArtifactID: art.ID,
			Total:      0.8,
			Dimensions: models.Dimensions{
				Alignment:    0.9,
				Completeness: 0.7,
				Consensus:    &consensus,
			},
			Notes:     []string{"factual accuracy: no judge configured"},
			Meta:      models.ScoreMeta{Words: 42},
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.CreateScore(ctx, score))

		got, err := s.ScoresForRun(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, art.ID, got[0].ArtifactID)
		assert.InDelta(t, 0.8, got[0].Total, 1e-9)
		require.NotNil(t, got[0].Dimensions.Consensus)
		assert.InDelta(t, 0.75, *got[0].Dimensions.Consensus, 1e-9)
		assert.Nil(t, got[0].Dimensions.FactualAccuracy)
		assert.Equal(t, 42, got[0].Meta.Words)
	})
}

func TestProviderKeys(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.ProviderKey(ctx, "openai")
		assert.ErrorIs(t, err, ErrNotFound)

		key := &models.ProviderKey{
			ID:        uuid.New(),
			Provider:  "openai",
			Enabled:   true,
			Secret:    "sk-test",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.PutProviderKey(ctx, key))

		got, err := s.ProviderKey(ctx, "openai")
		require.NoError(t, err)
		assert.True(t, got.Enabled)
		assert.Equal(t, "sk-test", got.Secret)

		key.Enabled = false
		require.NoError(t, s.PutProviderKey(ctx, key))
		got, err = s.ProviderKey(ctx, "openai")
		require.NoError(t, err)
		assert.False(t, got.Enabled)
	})
}

func TestListRuns(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := newTestRun()
		first.CreatedAt = time.Now().UTC().Add(-time.Minute)
		second := newTestRun()
		require.NoError(t, s.CreateRun(ctx, first))
		require.NoError(t, s.CreateRun(ctx, second))

		runs, err := s.ListRuns(ctx)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, first.ID, runs[0].ID)
		assert.Equal(t, second.ID, runs[1].ID)
	})
}
