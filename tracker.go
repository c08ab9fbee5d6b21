package uplink

import (
	"context"
	"sync"
)

// opTracker is a small registry of in-flight asynchronous operations.
// Fire-and-forget work registers here so shutdown can cancel it and a
// future timeout feature has a hook point.
type opTracker struct {
	mu   sync.Mutex
	next uint64
	ops  map[uint64]trackedOp
	wg   sync.WaitGroup
}

type trackedOp struct {
	name   string
	cancel context.CancelFunc
}

func newOpTracker() *opTracker {
	return &opTracker{
		ops: make(map[uint64]trackedOp),
	}
}

// begin registers a new operation derived from parent and returns its
// context plus a done function the operation must call when finished.
func (t *opTracker) begin(parent context.Context, name string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	id := t.next
	t.next++
	t.ops[id] = trackedOp{name: name, cancel: cancel}
	t.wg.Add(1)
	t.mu.Unlock()

	var once sync.Once
	done := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.ops, id)
			t.mu.Unlock()
			cancel()
			t.wg.Done()
		})
	}

	return ctx, done
}

// active returns the names of operations currently in flight.
func (t *opTracker) active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.ops))
	for _, op := range t.ops {
		names = append(names, op.name)
	}
	return names
}

// cancelAll cancels every in-flight operation and waits for each to call
// its done function.
func (t *opTracker) cancelAll() {
	t.mu.Lock()
	for _, op := range t.ops {
		op.cancel()
	}
	t.mu.Unlock()

	t.wg.Wait()
}
