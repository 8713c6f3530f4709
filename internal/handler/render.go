package handler

import (
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// sessionView is the JSON shape of a session.
type sessionView struct {
	ID               uint64            `json:"id"`
	RoomID           uint64            `json:"room_id"`
	HostID           uint64            `json:"host_id"`
	State            string            `json:"state"`
	Tiers            []model.PriceTier `json:"tiers"`
	Private          bool              `json:"private"`
	UnlockPriceCents uint32            `json:"unlock_price_cents"`
	DoubleArmed      bool              `json:"double_armed"`
	ReplayUntil      *time.Time        `json:"replay_until,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
}

func renderSession(s *model.Session) sessionView {
	return sessionView{
		ID:               s.ID,
		RoomID:           s.RoomID,
		HostID:           s.HostID,
		State:            s.State,
		Tiers:            s.Tiers,
		Private:          s.Private,
		UnlockPriceCents: s.UnlockPriceCents,
		DoubleArmed:      s.DoubleArmed,
		ReplayUntil:      s.ReplayUntil,
		CreatedAt:        s.CreatedAt,
		EndedAt:          s.EndedAt,
	}
}

// requestView is the JSON shape of a request.  The kind payload is flattened
// next to the discriminator so clients render entries without a second
// lookup.
type requestView struct {
	ID            uint64     `json:"id"`
	SessionID     uint64     `json:"session_id"`
	SubmitterID   uint64     `json:"submitter_id"`
	SubmitterName string     `json:"submitter_name"`
	Kind          string     `json:"kind"`
	Payload       model.Kind `json:"payload"`
	AmountCents   uint32     `json:"amount_cents"`
	Status        string     `json:"status"`
	CommandID     string     `json:"command_id"`
	ResponseText  *string    `json:"response_text,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	TerminalAt    *time.Time `json:"terminal_at,omitempty"`
}

func renderRequest(r *model.Request) requestView {
	return requestView{
		ID:            r.ID,
		SessionID:     r.SessionID,
		SubmitterID:   r.SubmitterID,
		SubmitterName: r.SubmitterName,
		Kind:          r.Kind.KindName(),
		Payload:       r.Kind,
		AmountCents:   r.AmountCents,
		Status:        r.Status,
		CommandID:     r.CommandID,
		ResponseText:  r.ResponseText,
		CreatedAt:     r.CreatedAt,
		TerminalAt:    r.TerminalAt,
	}
}

func renderRequests(rs []model.Request) []requestView {
	out := make([]requestView, 0, len(rs))
	for i := range rs {
		out = append(out, renderRequest(&rs[i]))
	}
	return out
}

// slotView is the JSON shape of the current serve slot, including the
// remaining countdown computed from the absolute start so every client
// derives the same value.
type slotView struct {
	RequestID        uint64    `json:"request_id"`
	StartedAt        time.Time `json:"started_at"`
	DurationSeconds  uint32    `json:"duration_seconds"`
	RemainingSeconds float64   `json:"remaining_seconds"`
	Doubled          bool      `json:"doubled"`
	Revealed         bool      `json:"revealed"`
}
