package orchestration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent bounds simultaneous run executions when no
// limit is configured.
const DefaultMaxConcurrent = 4

// Queue limits how many runs execute at once. Acquisition is FIFO-ish
// under the semaphore; a queued run waits rather than being rejected.
type Queue struct {
	orch *Orchestrator
	sem  *semaphore.Weighted
}

// NewQueue wraps an orchestrator with a concurrency limit.
func NewQueue(orch *Orchestrator, maxConcurrent int) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Queue{
		orch: orch,
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Execute blocks until a slot is free, then runs the pipeline.
func (q *Queue) Execute(ctx context.Context, runID uuid.UUID) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for execution slot: %w", err)
	}
	defer q.sem.Release(1)

	return q.orch.Execute(ctx, runID)
}
