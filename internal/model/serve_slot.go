package model

import "time"

// ServeSlot is the single "currently being performed" request of a session.
// The slot itself is a presentation concern owned by the host client, but it
// is mirrored into the `serve_slots` table so a client joining mid-serve can
// reconstruct the countdown from the absolute started_at timestamp alone.
// The session_id primary key guarantees at most one slot per session;
// serving a new request replaces the previous slot without touching the
// displaced request's status.
//
// Fields:
//  SessionID       – owning session (primary key).
//  RequestID       – request currently being performed.
//  StartedAt       – wall-clock serve instant; every client derives the
//                    remaining countdown from this value locally.
//  Doubled         – whether the double amplifier was armed when served.
//  DurationSeconds – countdown length for time-boxed serves (0 = untimed).
type ServeSlot struct {
	SessionID       uint64    // serve_slots.session_id
	RequestID       uint64    // serve_slots.request_id
	StartedAt       time.Time // serve_slots.started_at
	Doubled         bool      // serve_slots.doubled
	DurationSeconds uint32    // serve_slots.duration_seconds
}
