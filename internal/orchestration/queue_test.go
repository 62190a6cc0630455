package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriseon/relay/internal/events"
	"github.com/chriseon/relay/internal/models"
	"github.com/chriseon/relay/internal/sandbox"
	"github.com/chriseon/relay/internal/store"
)

// gateInvoker blocks every call until released and tracks the
// concurrency high-water mark.
type gateInvoker struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (g *gateInvoker) Run(ctx context.Context, req *sandbox.Request, onChunk func(string)) (*sandbox.Result, error) {
	n := g.active.Add(1)
	for {
		old := g.peak.Load()
		if n <= old || g.peak.CompareAndSwap(old, n) {
			break
		}
	}
	<-g.release
	g.active.Add(-1)
	return &sandbox.Result{Text: "ok"}, nil
}

func TestQueueLimitsConcurrency(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	bus := events.NewBus(nil)
	inv := &gateInvoker{release: make(chan struct{})}

	q := NewQueue(New(st, bus, inv, &fakeResolver{}), 2)

	const runs = 5
	ids := make([]*models.Run, runs)
	for i := range ids {
		ids[i] = testRun(t)
		require.NoError(t, st.CreateRun(ctx, ids[i]))
	}

	var wg sync.WaitGroup
	for _, run := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Execute(ctx, run.ID))
		}()
	}

	close(inv.release)
	wg.Wait()

	assert.LessOrEqual(t, inv.peak.Load(), int32(2), "no more than two runs in flight")
	for _, run := range ids {
		got, err := st.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
	}
}

func TestQueueRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := store.NewMemoryStore()
	bus := events.NewBus(nil)
	inv := &gateInvoker{release: make(chan struct{})}

	q := NewQueue(New(st, bus, inv, &fakeResolver{}), 1)

	blocker := testRun(t)
	require.NoError(t, st.CreateRun(context.Background(), blocker))
	waiting := testRun(t)
	require.NoError(t, st.CreateRun(context.Background(), waiting))

	go func() {
		_ = q.Execute(context.Background(), blocker.ID)
	}()
	// Wait until the first run actually holds the slot.
	for inv.active.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The second run is stuck behind the slot; cancelling its context
	// must abort the wait.
	cancel()
	err := q.Execute(ctx, waiting.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(inv.release)
}
