package reveal

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFires(t *testing.T) {
	t.Parallel()

	timers := NewTimers()
	done := make(chan struct{})
	timers.Schedule(1, 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if timers.Pending(1) {
		t.Error("fired timer still pending")
	}
}

func TestScheduleSupersedesPrevious(t *testing.T) {
	t.Parallel()

	timers := NewTimers()
	var firstFired, secondFired atomic.Bool
	done := make(chan struct{})

	timers.Schedule(1, 20*time.Millisecond, func() { firstFired.Store(true) })
	timers.Schedule(1, 40*time.Millisecond, func() {
		secondFired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}
	time.Sleep(30 * time.Millisecond)
	if firstFired.Load() {
		t.Error("superseded timer fired")
	}
	if !secondFired.Load() {
		t.Error("replacement timer did not fire")
	}
}

func TestCancelSuppressesFire(t *testing.T) {
	t.Parallel()

	timers := NewTimers()
	var fired atomic.Bool
	timers.Schedule(1, 20*time.Millisecond, func() { fired.Store(true) })
	timers.Cancel(1)

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer fired")
	}
	if timers.Pending(1) {
		t.Error("cancelled timer still pending")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	timers := NewTimers()
	var otherFired atomic.Bool
	done := make(chan struct{})
	timers.Schedule(1, 20*time.Millisecond, func() { otherFired.Store(true) })
	timers.Schedule(2, 20*time.Millisecond, func() { close(done) })
	timers.Cancel(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key's timer never fired")
	}
	if otherFired.Load() {
		t.Error("cancelled key fired")
	}
}
