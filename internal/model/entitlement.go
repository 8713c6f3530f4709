package model

import "time"

// Entitlement records that a participant has paid the unlock price for a
// private session.  Presence of a row is both sufficient and necessary to
// bypass the paywall; granting twice is a no-op.  Rows are never mutated or
// deleted while the session exists, so they double as a historical access
// record after the session ends.
//
// Fields:
//  SessionID     – session the access was bought for.
//  ParticipantID – participant the access was granted to.
//  GrantedAt     – when the unlock payment succeeded.
type Entitlement struct {
	SessionID     uint64    // entitlements.session_id
	ParticipantID uint64    // entitlements.participant_id
	GrantedAt     time.Time // entitlements.granted_at
}
