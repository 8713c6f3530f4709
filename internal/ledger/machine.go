// Package ledger is the authoritative model for paid interaction requests:
// it owns submission, the status state machine, the monetary ledger credits
// derived from transitions, and the session lifecycle that gates all of it.
package ledger

import (
	"errors"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// ErrSessionNotActive rejects a submission into a session that is not
// ACTIVE.  User-facing.
var ErrSessionNotActive = errors.New("session not active")

// ErrUnlockRequired rejects a submission into a private session by a
// participant without standing access.  User-facing.
var ErrUnlockRequired = errors.New("session unlock required")

// ErrUnknownTier rejects a tier purchase naming a tier absent from the
// session's menu.  User-facing.
var ErrUnknownTier = errors.New("unknown price tier")

// ErrInvalidTransition marks an illegal state machine edge.  It indicates a
// stale client view rather than user fault, so it is logged and answered
// with a conflict, never surfaced as a user error.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrAlreadyTerminal marks a transition targeting a request that has
// already reached a terminal status.  This is explicitly not a failure:
// callers treat it as idempotent success, which is what makes concurrent
// hosts and duplicate broadcast delivery safe.
var ErrAlreadyTerminal = errors.New("request already terminal")

// CanTransition reports whether the edge from -> to is legal for the given
// kind.  Same-status edges are allowed (idempotent no-ops); edges out of a
// terminal state map to ErrAlreadyTerminal; everything else not listed is
// ErrInvalidTransition.  The switch over kinds is exhaustive: adding a kind
// without teaching the machine about it fails submissions loudly instead of
// silently allowing everything.
func CanTransition(kind model.Kind, from, to string) error {
	if from == to {
		return nil
	}
	if model.KindTerminal(kind, from) {
		return ErrAlreadyTerminal
	}
	switch kind.(type) {
	case model.TierPurchase, model.CustomRequest:
		// PENDING -> SERVED -> ACCEPTED -> ANSWERED, declined only out of
		// PENDING (no refund on decline), expirable at any live stage.
		switch {
		case from == model.StatusPending && to == model.StatusServed:
			return nil
		case from == model.StatusServed && to == model.StatusAccepted:
			return nil
		case from == model.StatusAccepted && to == model.StatusAnswered:
			return nil
		case from == model.StatusPending && to == model.StatusDeclined:
			return nil
		case to == model.StatusExpired:
			return nil
		}
	case model.Tip, model.Vote:
		// No host serve step: accepted immediately, or expired with the
		// session.
		switch {
		case from == model.StatusPending && to == model.StatusAccepted:
			return nil
		case from == model.StatusPending && to == model.StatusExpired:
			return nil
		}
	}
	return ErrInvalidTransition
}

// creditCategory maps a request kind to its ledger category.
func creditCategory(kind model.Kind) string {
	switch kind.(type) {
	case model.TierPurchase:
		return model.LedgerTier
	case model.CustomRequest:
		return model.LedgerCustom
	case model.Tip:
		return model.LedgerTip
	case model.Vote:
		return model.LedgerVote
	}
	return ""
}
