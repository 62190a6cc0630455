package events

import (
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity used when a
// subscriber does not request its own.
const DefaultBuffer = 256

// Bus is a single-process publish/subscribe relay keyed by run ID.
// Publish never blocks the pipeline: a subscriber whose buffer is full
// is dropped (its channel closed) rather than back-pressuring the
// orchestrator. Publishing to a run with no subscribers is a no-op.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	logger *slog.Logger
}

type topic struct {
	subs     map[int]chan Event
	nextID   int
	terminal bool
}

// NewBus creates an empty bus. logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string]*topic),
		logger: logger,
	}
}

// Publish fans out e to every live subscriber of e.RunID.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[e.RunID]
	if !ok {
		return
	}

	for id, ch := range t.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber: disconnect instead of blocking.
			b.logger.Warn("dropping slow event subscriber",
				"run_id", e.RunID, "subscriber", id)
			close(ch)
			delete(t.subs, id)
		}
	}
}

// Subscribe attaches an observer to a run's event stream. The returned
// cancel func must be called on disconnect. buffer <= 0 uses
// DefaultBuffer. Subscribing to a run the bus already retired returns a
// closed channel: the caller should read current state from the store.
func (b *Bus) Subscribe(runID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[runID] = t
	}

	if t.terminal {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	ch := make(chan Event, buffer)
	t.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := t.subs[id]; ok {
			close(ch)
			delete(t.subs, id)
		}
		b.maybeRetire(runID, t)
	}
	return ch, cancel
}

// Close marks a run's topic terminal and closes all subscriber
// channels. Call after the terminal event has been published.
func (b *Bus) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		return
	}
	t.terminal = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	b.maybeRetire(runID, t)
}

// maybeRetire garbage-collects a topic once it is terminal and has no
// subscribers. Caller holds b.mu.
func (b *Bus) maybeRetire(runID string, t *topic) {
	if t.terminal && len(t.subs) == 0 {
		delete(b.topics, runID)
	}
}

// Subscribers reports the live subscriber count for a run.
func (b *Bus) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[runID]; ok {
		return len(t.subs)
	}
	return 0
}
