// Package reveal implements the shared countdown and suspense timing used
// by every subscribed client.  The host emits a single absolute started_at
// timestamp at serve time; each client recomputes the remaining time
// locally on every tick.  No client ever sends or receives a decrement, so
// the countdown tolerates clock drift, missed ticks and reconnects: a
// client joining mid-countdown reconstructs the correct remaining time from
// started_at alone, and all clients cross zero at the same wall-clock
// instant (within tick granularity).
package reveal

import "time"

// CountdownDuration is the fixed countdown for paid truth/dare prompts.
const CountdownDuration = 10 * time.Second

// SuspenseDelay is the cosmetic pause between the host's ANSWERED
// transition and the moment the submitting participant sees the response.
// The underlying transition is already final when this delay starts.
const SuspenseDelay = 3 * time.Second

// Remaining computes how much countdown time is left at now.  It never goes
// negative: once the deadline has passed the countdown is over.
func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	left := duration - now.Sub(startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Countdown is a client's local view of a running countdown, derived
// entirely from the serve instant.  Two clients holding the same StartedAt
// always agree on Remaining and on the reveal instant, which is what makes
// duplicate countdown_start deliveries harmless.
type Countdown struct {
	StartedAt time.Time
	Duration  time.Duration
}

// Remaining returns the time left at now.
func (c Countdown) Remaining(now time.Time) time.Duration {
	return Remaining(c.StartedAt, c.Duration, now)
}

// Revealed reports whether the countdown has completed at now.  Each client
// makes this transition independently; no synchronization round-trip is
// required and reaching it twice is harmless.
func (c Countdown) Revealed(now time.Time) bool {
	return c.Remaining(now) == 0
}

// RevealAt returns the absolute wall-clock instant of the reveal.
func (c Countdown) RevealAt() time.Time {
	return c.StartedAt.Add(c.Duration)
}
