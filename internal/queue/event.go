// Package queue implements the durable change-feed: every request/session
// row mutation is published to a RabbitMQ topic exchange keyed by room so
// subscribed clients learn about inserts and updates without polling the
// primary database.  Delivery is at-least-once with no cross-row ordering
// guarantee; consumers rely on merge-by-id and the per-row monotonic status
// invariant, never on arrival order.
package queue

import (
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// Change-feed operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
)

// Change-feed tables.
const (
	TableRequests = "requests"
	TableSessions = "sessions"
)

// RequestRow is the denormalized requests snapshot carried by the feed.  It
// contains enough for a client to render the entry without a follow-up
// read; the durable store remains the source of truth.
type RequestRow struct {
	ID            uint64  `json:"id"`
	SessionID     uint64  `json:"session_id"`
	SubmitterID   uint64  `json:"submitter_id"`
	SubmitterName string  `json:"submitter_name"`
	Kind          string  `json:"kind"`
	AmountCents   uint32  `json:"amount_cents"`
	Status        string  `json:"status"`
	CommandID     string  `json:"command_id"`
	ResponseText  *string `json:"response_text,omitempty"`
	CreatedAt     string  `json:"created_at"`
	TerminalAt    *string `json:"terminal_at,omitempty"`
}

// SessionRow is the denormalized sessions snapshot carried by the feed.
type SessionRow struct {
	ID          uint64  `json:"id"`
	RoomID      uint64  `json:"room_id"`
	HostID      uint64  `json:"host_id"`
	State       string  `json:"state"`
	Private     bool    `json:"private"`
	ReplayUntil *string `json:"replay_until,omitempty"`
}

// RowEvent is one change-feed message: (table, operation, row) filtered by
// room via the routing key.
type RowEvent struct {
	Table     string      `json:"table"`
	Op        string      `json:"op"`
	RoomID    uint64      `json:"room_id"`
	Request   *RequestRow `json:"request,omitempty"`
	Session   *SessionRow `json:"session,omitempty"`
	EmittedAt string      `json:"emitted_at"`
}

// RequestEvent builds a RowEvent for a request mutation.
func RequestEvent(op string, roomID uint64, req *model.Request) RowEvent {
	row := &RequestRow{
		ID:            req.ID,
		SessionID:     req.SessionID,
		SubmitterID:   req.SubmitterID,
		SubmitterName: req.SubmitterName,
		Kind:          req.Kind.KindName(),
		AmountCents:   req.AmountCents,
		Status:        req.Status,
		CommandID:     req.CommandID,
		ResponseText:  req.ResponseText,
		CreatedAt:     req.CreatedAt.UTC().Format(time.RFC3339),
	}
	if req.TerminalAt != nil {
		v := req.TerminalAt.UTC().Format(time.RFC3339)
		row.TerminalAt = &v
	}
	return RowEvent{
		Table:     TableRequests,
		Op:        op,
		RoomID:    roomID,
		Request:   row,
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// SessionEvent builds a RowEvent for a session mutation.
func SessionEvent(op string, s *model.Session) RowEvent {
	row := &SessionRow{
		ID:      s.ID,
		RoomID:  s.RoomID,
		HostID:  s.HostID,
		State:   s.State,
		Private: s.Private,
	}
	if s.ReplayUntil != nil {
		v := s.ReplayUntil.UTC().Format(time.RFC3339)
		row.ReplayUntil = &v
	}
	return RowEvent{
		Table:     TableSessions,
		Op:        op,
		RoomID:    s.RoomID,
		Session:   row,
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
