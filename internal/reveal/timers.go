package reveal

import (
	"sync"
	"time"
)

// Timers schedules at most one pending fire per key.  Scheduling a new fire
// for a key cancels the previous one, so a host serving request B before
// request A's reveal elapsed silently supersedes A: the stale timer can
// never resurrect a superseded request onto the screen.  All fires are
// non-blocking; callbacks run on their own goroutine.
type Timers struct {
	mu      sync.Mutex
	gen     map[uint64]uint64
	pending map[uint64]*time.Timer
}

// NewTimers returns an empty scheduler.
func NewTimers() *Timers {
	return &Timers{
		gen:     make(map[uint64]uint64),
		pending: make(map[uint64]*time.Timer),
	}
}

// Schedule arms fn to run after d, replacing any pending fire for the same
// key.  The generation counter guards the race between an expiring timer
// and a concurrent Schedule/Cancel: a fire whose generation is stale does
// nothing.
func (t *Timers) Schedule(key uint64, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.pending[key]; ok {
		old.Stop()
	}
	t.gen[key]++
	gen := t.gen[key]
	t.pending[key] = time.AfterFunc(d, func() {
		t.mu.Lock()
		live := t.gen[key] == gen
		if live {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Cancel drops the pending fire for key, if any.
func (t *Timers) Cancel(key uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.pending[key]; ok {
		old.Stop()
		delete(t.pending, key)
	}
	t.gen[key]++
}

// CancelAll drops every pending fire.  Used on shutdown.
func (t *Timers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, old := range t.pending {
		old.Stop()
		delete(t.pending, key)
		t.gen[key]++
	}
}

// Pending reports whether a fire is armed for key.
func (t *Timers) Pending(key uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}
