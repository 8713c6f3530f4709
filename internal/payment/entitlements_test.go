package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

type fakeProvider struct {
	decline    bool
	authorized int
	voided     []string
}

func (f *fakeProvider) Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error) {
	if f.decline {
		return "", ErrPaymentDeclined
	}
	f.authorized++
	return "ref-x", nil
}

func (f *fakeProvider) Void(ctx context.Context, ref string) error {
	f.voided = append(f.voided, ref)
	return nil
}

type fakeEntitlementStore struct {
	grants map[uint64]map[uint64]bool
	// raceOnGrant simulates another device of the same participant winning
	// the insert between the Has check and the Grant.
	raceOnGrant bool
}

func newFakeEntitlementStore() *fakeEntitlementStore {
	return &fakeEntitlementStore{grants: make(map[uint64]map[uint64]bool)}
}

func (f *fakeEntitlementStore) Grant(ctx context.Context, sessionID, participantID uint64) (bool, error) {
	if f.raceOnGrant {
		f.raceOnGrant = false
		return false, nil
	}
	if f.grants[sessionID] == nil {
		f.grants[sessionID] = make(map[uint64]bool)
	}
	if f.grants[sessionID][participantID] {
		return false, nil
	}
	f.grants[sessionID][participantID] = true
	return true, nil
}

func (f *fakeEntitlementStore) Has(ctx context.Context, sessionID, participantID uint64) (bool, error) {
	return f.grants[sessionID][participantID], nil
}

type fakeAppender struct {
	events []model.LedgerEvent
}

func (f *fakeAppender) Append(ctx context.Context, ev *model.LedgerEvent) error {
	f.events = append(f.events, *ev)
	return nil
}

func privateSession() *model.Session {
	return &model.Session{ID: 3, RoomID: 7, Private: true, UnlockPriceCents: 500, State: model.SessionActive}
}

func TestUnlockChargesOnceAndCredits(t *testing.T) {
	provider := &fakeProvider{}
	store := newFakeEntitlementStore()
	ledger := &fakeAppender{}
	e := NewEntitlements(provider, store, ledger)
	sess := privateSession()

	charged, err := e.Unlock(context.Background(), sess, 42)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !charged {
		t.Error("first unlock must charge")
	}
	if has, _ := e.HasStandingAccess(context.Background(), sess.ID, 42); !has {
		t.Error("standing access missing after unlock")
	}
	if len(ledger.events) != 1 || ledger.events[0].Category != model.LedgerUnlock || ledger.events[0].AmountCents != 500 {
		t.Errorf("ledger events = %+v, want one UNLOCK/500", ledger.events)
	}

	// Re-unlock: no charge, access kept.
	charged, err = e.Unlock(context.Background(), sess, 42)
	if err != nil {
		t.Fatalf("second Unlock: %v", err)
	}
	if charged {
		t.Error("re-unlock must not charge again")
	}
	if provider.authorized != 1 {
		t.Errorf("authorized %d times, want 1", provider.authorized)
	}
	if len(ledger.events) != 1 {
		t.Errorf("ledger events = %d, want still 1", len(ledger.events))
	}
}

func TestUnlockDeclined(t *testing.T) {
	provider := &fakeProvider{decline: true}
	store := newFakeEntitlementStore()
	e := NewEntitlements(provider, store, &fakeAppender{})
	sess := privateSession()

	_, err := e.Unlock(context.Background(), sess, 42)
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined", err)
	}
	if has, _ := store.Has(context.Background(), sess.ID, 42); has {
		t.Error("declined unlock must not grant access")
	}
}

func TestUnlockRaceVoidsCharge(t *testing.T) {
	provider := &fakeProvider{}
	store := newFakeEntitlementStore()
	e := NewEntitlements(provider, store, &fakeAppender{})
	sess := privateSession()
	store.raceOnGrant = true

	charged, err := e.Unlock(context.Background(), sess, 42)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if charged {
		t.Error("losing the grant race must report not-charged")
	}
	if len(provider.voided) != 1 {
		t.Errorf("voided = %v, want the racing charge released", provider.voided)
	}
}
