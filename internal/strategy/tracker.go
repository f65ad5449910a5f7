package strategy

import (
	"sort"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/node"
)

var _ node.CycleReporter = (*CycleTracker)(nil)

// CycleTracker knows when a play index is complete: every leaf node of the
// graph has to report it. Reports for any other play index are ignored.
type CycleTracker struct {
	mu      sync.Mutex
	leaves  []string
	index   int64
	pending map[string]bool
	done    chan struct{}
	started time.Time

	completed int
	last      time.Duration
	total     time.Duration
}

func NewCycleTracker(leaves ...string) *CycleTracker {
	t := &CycleTracker{index: -1}
	t.SetLeaves(leaves...)

	return t
}

// SetLeaves replaces the set of nodes a cycle waits for.
func (t *CycleTracker) SetLeaves(leaves ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.leaves = append([]string(nil), leaves...)
	sort.Strings(t.leaves)
}

// Begin opens the cycle of playIndex. The returned channel is closed once
// every leaf reported it; with no leaves it is closed right away.
func (t *CycleTracker) Begin(playIndex int64) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index = playIndex
	t.started = time.Now()
	t.done = make(chan struct{})
	t.pending = make(map[string]bool, len(t.leaves))

	for _, id := range t.leaves {
		t.pending[id] = true
	}

	if len(t.pending) == 0 {
		t.finishLocked()
	}

	return t.done
}

func (t *CycleTracker) Report(nodeID string, playIndex int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if playIndex != t.index || !t.pending[nodeID] {
		return
	}

	delete(t.pending, nodeID)

	if len(t.pending) == 0 {
		t.finishLocked()
	}
}

func (t *CycleTracker) finishLocked() {
	d := time.Since(t.started)
	t.completed++
	t.last = d
	t.total += d

	close(t.done)
}

// Pending lists the leaves that have not reported the open cycle.
func (t *CycleTracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

// LastDuration is the wall time of the last completed cycle.
func (t *CycleTracker) LastDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last
}

// Completed is the number of cycles completed since the last reset.
func (t *CycleTracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.completed
}

// AverageDuration of the completed cycles.
func (t *CycleTracker) AverageDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed == 0 {
		return 0
	}

	return t.total / time.Duration(t.completed)
}

// Reset forgets the open cycle and the timings. The leaves are kept.
func (t *CycleTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index = -1
	t.pending = nil
	t.done = nil
	t.completed = 0
	t.last = 0
	t.total = 0
}
