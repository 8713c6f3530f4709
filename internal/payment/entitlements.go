package payment

import (
	"context"
	"log"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// EntitlementStore is the slice of the durable store the entitlement
// service needs.  *repository.EntitlementRepo satisfies it.
type EntitlementStore interface {
	Grant(ctx context.Context, sessionID, participantID uint64) (bool, error)
	Has(ctx context.Context, sessionID, participantID uint64) (bool, error)
}

// LedgerAppender records the monetary effect of unlock purchases.
// *repository.LedgerRepo satisfies it.
type LedgerAppender interface {
	Append(ctx context.Context, ev *model.LedgerEvent) error
}

// Entitlements decides whether a participant may submit interactions into a
// session: public sessions are open, private sessions require a standing
// unlock bought through the payment provider.
type Entitlements struct {
	provider Provider
	store    EntitlementStore
	ledger   LedgerAppender
}

// NewEntitlements wires the entitlement service.
func NewEntitlements(provider Provider, store EntitlementStore, ledger LedgerAppender) *Entitlements {
	return &Entitlements{provider: provider, store: store, ledger: ledger}
}

// HasStandingAccess reports whether the participant already holds an
// entitlement for the session.
func (e *Entitlements) HasStandingAccess(ctx context.Context, sessionID, participantID uint64) (bool, error) {
	return e.store.Has(ctx, sessionID, participantID)
}

// Authorize delegates to the payment provider.
func (e *Entitlements) Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error) {
	return e.provider.Authorize(ctx, participantID, amountCents)
}

// Void delegates to the payment provider.
func (e *Entitlements) Void(ctx context.Context, ref string) error {
	return e.provider.Void(ctx, ref)
}

// Unlock charges the session's unlock price and grants standing access.
// Re-unlocking is a no-op: the participant keeps the original grant and is
// not charged again.  A fresh grant appends an UNLOCK ledger event; ledger
// failures are logged but do not revoke the access the participant paid for.
func (e *Entitlements) Unlock(ctx context.Context, session *model.Session, participantID uint64) (bool, error) {
	has, err := e.store.Has(ctx, session.ID, participantID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	ref, err := e.provider.Authorize(ctx, participantID, session.UnlockPriceCents)
	if err != nil {
		return false, err
	}
	created, err := e.store.Grant(ctx, session.ID, participantID)
	if err != nil {
		// The authorization is orphaned if we cannot record the grant;
		// release it so the participant is not charged for nothing.
		_ = e.provider.Void(ctx, ref)
		return false, err
	}
	if !created {
		// Lost a race with another device of the same participant; the
		// earlier grant stands and this charge is released.
		_ = e.provider.Void(ctx, ref)
		return false, nil
	}
	if err := e.ledger.Append(ctx, &model.LedgerEvent{
		RoomID:        session.RoomID,
		SessionID:     session.ID,
		ParticipantID: participantID,
		Category:      model.LedgerUnlock,
		AmountCents:   session.UnlockPriceCents,
	}); err != nil {
		log.Printf("payment: ledger append for unlock session=%d participant=%d failed: %v", session.ID, participantID, err)
	}
	return true, nil
}
