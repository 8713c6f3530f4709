package reveal

import (
	"testing"
	"time"
)

func TestRemainingFromAbsoluteStart(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		at   time.Time
		want time.Duration
	}{
		{"at start", start, 10 * time.Second},
		{"mid countdown", start.Add(5 * time.Second), 5 * time.Second},
		{"late join", start.Add(8 * time.Second), 2 * time.Second},
		{"exactly done", start.Add(10 * time.Second), 0},
		{"after done", start.Add(25 * time.Second), 0},
		{"clock skew before start", start.Add(-2 * time.Second), 12 * time.Second},
	}
	for _, tc := range cases {
		if got := Remaining(start, CountdownDuration, tc.at); got != tc.want {
			t.Errorf("%s: Remaining = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCountdownAgreementAcrossClients(t *testing.T) {
	t.Parallel()

	// Two clients that received the same started_at, one of them having
	// joined mid-countdown, must agree on the reveal instant.
	start := time.Now().UTC()
	early := Countdown{StartedAt: start, Duration: CountdownDuration}
	late := Countdown{StartedAt: start, Duration: CountdownDuration}

	if early.RevealAt() != late.RevealAt() {
		t.Fatal("clients disagree on the reveal instant")
	}
	probe := start.Add(7 * time.Second)
	if early.Remaining(probe) != late.Remaining(probe) {
		t.Fatal("clients disagree on remaining time")
	}
	if early.Revealed(probe) {
		t.Error("revealed before the duration elapsed")
	}
	if !early.Revealed(start.Add(CountdownDuration)) {
		t.Error("not revealed at the deadline")
	}
}

func TestDuplicateCountdownStartIsHarmless(t *testing.T) {
	t.Parallel()

	// Re-applying the same cue payload yields an identical countdown; the
	// client can process duplicates blindly.
	start := time.Now().UTC()
	a := Countdown{StartedAt: start, Duration: CountdownDuration}
	b := Countdown{StartedAt: start, Duration: CountdownDuration}
	if a != b {
		t.Fatal("duplicate cue produced a different countdown")
	}
}
