package model

import (
	"encoding/json"
	"time"
)

// Session lifecycle states.  A session moves DRAFT -> ACTIVE -> ENDED and
// never leaves ENDED.  Re-activating an already ACTIVE session ("resume")
// is treated as a no-op rather than a transition.
const (
	SessionDraft  = "DRAFT"
	SessionActive = "ACTIVE"
	SessionEnded  = "ENDED"
)

// PriceTier is one entry of a session's ordered pricing menu.  Tiers are
// stored as a JSON array in the sessions table so the host can reorder or
// rename them without schema changes.
//
// Fields:
//  Name       – stable identifier referenced by tier purchases (e.g. "silver").
//  PriceCents – price charged when a participant buys this tier.
//  Label      – display label shown to participants.
type PriceTier struct {
	Name       string `json:"name"`
	PriceCents uint32 `json:"price_cents"`
	Label      string `json:"label"`
}

// Session represents one hosted, time-bounded instance of a paid-interaction
// room as stored in the `sessions` table.  At most one session per host may
// be ACTIVE at a time; starting a new one force-ends the previous ACTIVE
// session owned by the same host.
//
// Fields:
//  ID               – primary key identifier.
//  RoomID           – room this session runs in.
//  HostID           – user who hosts the session.
//  State            – lifecycle state (DRAFT, ACTIVE, ENDED).
//  Tiers            – ordered pricing menu (sessions.tiers JSON column).
//  Private          – when true, submissions require a paid unlock.
//  UnlockPriceCents – entry price for private sessions.
//  DoubleArmed      – pending "double" amplifier; copied onto the next
//                     served request and then cleared.
//  ReplayUntil      – absolute end of an open replay window (nullable).
//  CreatedAt        – creation timestamp.
//  EndedAt          – when the session ended (nullable).
type Session struct {
	ID               uint64      // sessions.id
	RoomID           uint64      // sessions.room_id
	HostID           uint64      // sessions.host_id
	State            string      // sessions.state
	Tiers            []PriceTier // sessions.tiers (JSON)
	Private          bool        // sessions.private
	UnlockPriceCents uint32      // sessions.unlock_price_cents
	DoubleArmed      bool        // sessions.double_armed
	ReplayUntil      *time.Time  // sessions.replay_until (nullable)
	CreatedAt        time.Time   // sessions.created_at
	EndedAt          *time.Time  // sessions.ended_at (nullable)
}

// Tier returns the tier with the given name and whether it exists.
func (s *Session) Tier(name string) (PriceTier, bool) {
	for _, t := range s.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return PriceTier{}, false
}

// MarshalTiers serializes the pricing menu for storage.  An empty menu is
// stored as an empty JSON array rather than NULL.
func MarshalTiers(tiers []PriceTier) ([]byte, error) {
	if tiers == nil {
		tiers = []PriceTier{}
	}
	return json.Marshal(tiers)
}

// UnmarshalTiers parses the stored pricing menu.  NULL and empty columns
// yield an empty slice.
func UnmarshalTiers(raw []byte) ([]PriceTier, error) {
	if len(raw) == 0 {
		return []PriceTier{}, nil
	}
	var tiers []PriceTier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}
