// Package orchestration drives a run through the fixed three-stage
// pipeline: draft, refine, synthesize. Stage execution is sequential by
// construction; concurrency exists only across independent runs.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chriseon/relay/internal/credentials"
	"github.com/chriseon/relay/internal/events"
	"github.com/chriseon/relay/internal/models"
	"github.com/chriseon/relay/internal/prompt"
	"github.com/chriseon/relay/internal/sandbox"
	"github.com/chriseon/relay/internal/scoring"
	"github.com/chriseon/relay/internal/store"
)

// progressEvery is how many stream chunks pass between progress events.
const progressEvery = 10

// Invoker executes one provider call inside the isolation boundary.
// Implemented by sandbox.Runner.
type Invoker interface {
	Run(ctx context.Context, req *sandbox.Request, onChunk func(string)) (*sandbox.Result, error)
}

// Orchestrator executes runs end to end and records every outcome in
// the store before announcing it on the bus.
type Orchestrator struct {
	store   store.Store
	bus     *events.Bus
	invoker Invoker
	creds   credentials.Resolver

	scorer   *scoring.Engine
	credMode credentials.Mode
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScorer replaces the default heuristic scoring engine.
func WithScorer(s *scoring.Engine) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithCredentialMode sets the credential resolution mode for all stages.
func WithCredentialMode(m credentials.Mode) Option {
	return func(o *Orchestrator) { o.credMode = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(st store.Store, bus *events.Bus, invoker Invoker, creds credentials.Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		bus:      bus,
		invoker:  invoker,
		creds:    creds,
		scorer:   scoring.New(nil),
		credMode: credentials.ModeAuto,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the pipeline for runID to a terminal state. It is
// idempotent: passes that already produced an artifact are not
// re-executed, errored ones included. A completed run is a no-op.
//
// The returned error covers infrastructure failures only (store access,
// missing run). Stage failures are recorded as errored artifacts and
// the pipeline degrades rather than aborts.
func (o *Orchestrator) Execute(ctx context.Context, runID uuid.UUID) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status == models.StatusCompleted {
		return nil
	}

	run.Status = models.StatusRunning
	if run.StartedAt == nil {
		now := time.Now().UTC()
		run.StartedAt = &now
	}
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	o.bus.Publish(events.New(events.RunStarted, run.ID.String(), 0, nil))
	o.logger.Info("run started", "run_id", run.ID, "query_len", len(run.Query))

	var prev *models.Artifact
	for _, stage := range models.Stages() {
		artifact, err := o.executeStage(ctx, run, stage, prev)
		if err != nil {
			return o.finishFailed(ctx, run, err)
		}
		prev = artifact
	}

	// Stage errors are data on artifacts; the run itself completes.
	// Failed is reserved for infrastructure errors.
	now := time.Now().UTC()
	run.EndedAt = &now
	run.Status = models.StatusCompleted
	run.Error = nil
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	o.bus.Publish(events.New(events.RunCompleted, run.ID.String(), 0, map[string]any{
		"status": run.Status,
		"usage":  run.TotalUsage,
	}))
	o.bus.Close(run.ID.String())
	o.logger.Info("run finished",
		"run_id", run.ID, "status", run.Status, "total_tokens", run.TotalUsage.Total())
	return nil
}

// executeStage runs one pass, returning its artifact. Existing
// artifacts are reused untouched. The returned error is infrastructure
// only; provider and configuration failures come back as an errored
// artifact.
func (o *Orchestrator) executeStage(ctx context.Context, run *models.Run, stage models.Stage, prev *models.Artifact) (*models.Artifact, error) {
	existing, err := o.store.ArtifactForPass(ctx, run.ID, stage.PassIndex)
	if err == nil {
		o.logger.Info("pass already has artifact, skipping",
			"run_id", run.ID, "pass", stage.PassIndex, "errored", existing.Errored())
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check pass %d: %w", stage.PassIndex, err)
	}

	ref := run.SelectedModels[stage.Slot]
	o.bus.Publish(events.New(events.ArtifactPlanned, run.ID.String(), stage.PassIndex, map[string]any{
		"slot":  stage.Slot,
		"role":  stage.Role,
		"model": ref,
	}))

	providerName, modelName, err := models.ParseModelRef(ref)
	if err != nil {
		return o.recordStageError(ctx, run, stage, ref, err.Error())
	}

	cred, err := o.creds.Resolve(ctx, providerName, o.credMode)
	if err != nil {
		return o.recordStageError(ctx, run, stage, ref,
			fmt.Sprintf("credentials for %s: %s", providerName, err))
	}

	previous := ""
	if prev != nil && prev.Usable() {
		previous = prev.OutputText
	} else if stage.Role != models.RoleDraft {
		o.logger.Warn("prior stage unusable, degrading to original query",
			"run_id", run.ID, "pass", stage.PassIndex)
	}

	built := prompt.Build(prompt.Input{
		Role:         stage.Role,
		Query:        run.Query,
		Previous:     previous,
		Extra:        run.Options.StagePrompts[stage.Slot],
		Length:       run.Options.OutputLength,
		Instructions: run.Options.Instructions,
	})

	o.bus.Publish(events.New(events.ArtifactStarted, run.ID.String(), stage.PassIndex, map[string]any{
		"model":    ref,
		"degraded": stage.Role != models.RoleDraft && previous == "",
	}))

	var (
		chunks     int
		totalChars int
	)
	onChunk := func(text string) {
		chunks++
		totalChars += len(text)
		o.bus.Publish(events.New(events.ArtifactChunk, run.ID.String(), stage.PassIndex, map[string]any{
			"text": text,
		}))
		if chunks%progressEvery == 0 {
			o.bus.Publish(events.New(events.ArtifactProgress, run.ID.String(), stage.PassIndex, map[string]any{
				"chunks": chunks,
				// Rough estimate at ~4 chars per token.
				"estimated_tokens": totalChars / 4,
			}))
		}
	}

	started := time.Now()
	result, err := o.invoker.Run(ctx, &sandbox.Request{
		Provider:          providerName,
		Model:             modelName,
		Instructions:      built.System,
		Input:             built.User,
		MaxTokens:         prompt.MaxOutputTokens(run.Options.OutputLength),
		Temperature:       run.Options.Temperature,
		TopP:              run.Options.TopP,
		MaxToolIterations: run.Options.MaxToolIterations,
		Secret:            cred.Secret,
		Stream:            true,
	}, onChunk)
	latency := time.Since(started)

	if err != nil {
		var failure *sandbox.Failure
		if errors.As(err, &failure) {
			o.logger.Error("stage failed",
				"run_id", run.ID, "pass", stage.PassIndex,
				"provider", providerName, "model", modelName,
				"kind", failure.Kind, "error", failure.Error())
			return o.recordStageError(ctx, run, stage, ref, failure.Error())
		}
		return nil, fmt.Errorf("invoke pass %d: %w", stage.PassIndex, err)
	}

	artifact := &models.Artifact{
		ID:         uuid.New(),
		RunID:      run.ID,
		PassIndex:  stage.PassIndex,
		Role:       stage.Role,
		ModelID:    ref,
		OutputText: result.Text,
		Usage:      result.Usage,
		LatencyMS:  latency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.createArtifact(ctx, artifact); err != nil {
		return nil, err
	}

	run.TotalUsage.Add(result.Usage)
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}

	o.bus.Publish(events.New(events.ArtifactCreated, run.ID.String(), stage.PassIndex, map[string]any{
		"artifact_id": artifact.ID.String(),
		"model":       ref,
		"chars":       len(result.Text),
		"usage":       result.Usage,
	}))

	if err := o.scoreArtifact(ctx, run, artifact, previous); err != nil {
		return nil, err
	}
	return artifact, nil
}

// recordStageError persists a stage failure as its terminal artifact so
// resumption never retries it.
func (o *Orchestrator) recordStageError(ctx context.Context, run *models.Run, stage models.Stage, ref, msg string) (*models.Artifact, error) {
	artifact := &models.Artifact{
		ID:        uuid.New(),
		RunID:     run.ID,
		PassIndex: stage.PassIndex,
		Role:      stage.Role,
		ModelID:   ref,
		Error:     &msg,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.createArtifact(ctx, artifact); err != nil {
		return nil, err
	}
	o.bus.Publish(events.New(events.ArtifactError, run.ID.String(), stage.PassIndex, map[string]any{
		"artifact_id": artifact.ID.String(),
		"model":       ref,
		"error":       msg,
	}))
	return artifact, nil
}

// createArtifact stores an artifact, deferring to an existing one if a
// concurrent executor won the race for this pass.
func (o *Orchestrator) createArtifact(ctx context.Context, artifact *models.Artifact) error {
	err := o.store.CreateArtifact(ctx, artifact)
	if errors.Is(err, store.ErrDuplicateArtifact) {
		existing, getErr := o.store.ArtifactForPass(ctx, artifact.RunID, artifact.PassIndex)
		if getErr != nil {
			return fmt.Errorf("load winning artifact: %w", getErr)
		}
		*artifact = *existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("store artifact for pass %d: %w", artifact.PassIndex, err)
	}
	return nil
}

func (o *Orchestrator) scoreArtifact(ctx context.Context, run *models.Run, artifact *models.Artifact, peer string) error {
	o.bus.Publish(events.New(events.ScoreStarted, run.ID.String(), artifact.PassIndex, map[string]any{
		"artifact_id": artifact.ID.String(),
	}))

	res := o.scorer.Score(ctx, artifact.OutputText, scoring.Context{
		Query:  run.Query,
		Length: run.Options.OutputLength,
		Peer:   peer,
	})

	score := &models.Score{
		ID:         uuid.New(),
		RunID:      run.ID,
		ArtifactID: artifact.ID,
		Total:      res.Total,
		Dimensions: res.Dimensions,
		Notes:      res.Notes,
		Meta:       res.Meta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.CreateScore(ctx, score); err != nil {
		return fmt.Errorf("store score: %w", err)
	}

	o.bus.Publish(events.New(events.ScoreCreated, run.ID.String(), artifact.PassIndex, map[string]any{
		"artifact_id": artifact.ID.String(),
		"total":       score.Total,
	}))
	return nil
}

// finishFailed marks the run failed with an infrastructure error and
// still returns that error to the caller.
func (o *Orchestrator) finishFailed(ctx context.Context, run *models.Run, cause error) error {
	now := time.Now().UTC()
	run.EndedAt = &now
	run.Status = models.StatusFailed
	msg := cause.Error()
	run.Error = &msg
	if err := o.store.UpdateRun(ctx, run); err != nil {
		o.logger.Error("failed to record run failure", "run_id", run.ID, "error", err)
	}
	o.bus.Publish(events.New(events.RunCompleted, run.ID.String(), 0, map[string]any{
		"status": run.Status,
		"error":  msg,
	}))
	o.bus.Close(run.ID.String())
	return cause
}

var _ Invoker = (*sandbox.Runner)(nil)
