package model

import "time"

// Ledger event categories.  They mirror the request kinds plus UNLOCK for
// paywall entry purchases.
const (
	LedgerTier   = "TIER"
	LedgerCustom = "CUSTOM"
	LedgerTip    = "TIP"
	LedgerVote   = "VOTE"
	LedgerUnlock = "UNLOCK"
)

// LedgerEvent is an append-only record of monetary effect, used purely for
// aggregate reporting (totals per category, top spender).  Events are
// derived from successful request transitions and unlock purchases and are
// never mutated.
//
// Fields:
//  ID            – primary key identifier.
//  RoomID        – room the money was spent in.
//  SessionID     – session the money was spent in.
//  ParticipantID – who spent it.
//  Category      – one of the Ledger* constants.
//  AmountCents   – amount credited.
//  CreatedAt     – when the credit happened.
type LedgerEvent struct {
	ID            uint64    // ledger_events.id
	RoomID        uint64    // ledger_events.room_id
	SessionID     uint64    // ledger_events.session_id
	ParticipantID uint64    // ledger_events.participant_id
	Category      string    // ledger_events.category
	AmountCents   uint32    // ledger_events.amount_cents
	CreatedAt     time.Time // ledger_events.created_at
}
