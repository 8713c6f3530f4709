// Package fanout distributes state to connected clients over two channels
// with different guarantees: the durable change-feed (at-least-once, source
// of truth) and the ephemeral cue bus (at-most-once, low-latency UI hints).
// Neither channel is trusted to be exhaustive; clients reconcile both
// against a one-shot pull using merge-by-id.
package fanout

import "time"

// Cue types.  There is no reveal cue: the countdown_start cue carries the
// absolute serve instant and every client transitions to revealed locally
// when its derived remaining time reaches zero.
const (
	CueCountdownStart = "countdown_start"
	CueResponseReady  = "response_ready"
	CueSlotCleared    = "slot_cleared"
	CueSessionEnded   = "session_ended"
)

// Cue is one fire-and-forget UI notification.  Cues are not persisted and
// a client offline at send time will never see that specific cue; anything
// correctness-critical also flows through the change-feed.
type Cue struct {
	Type      string `json:"type"`
	RoomID    uint64 `json:"room_id"`
	SessionID uint64 `json:"session_id"`
	RequestID uint64 `json:"request_id,omitempty"`

	// Countdown cues carry the absolute serve instant; clients derive the
	// remaining time locally and never receive decrements.
	StartedAt       *time.Time `json:"started_at,omitempty"`
	DurationSeconds uint32     `json:"duration_seconds,omitempty"`
	Doubled         bool       `json:"doubled,omitempty"`

	// response_ready cues address the submitting participant only; other
	// clients ignore them.
	ForParticipantID uint64  `json:"for_participant_id,omitempty"`
	ResponseText     *string `json:"response_text,omitempty"`
}
