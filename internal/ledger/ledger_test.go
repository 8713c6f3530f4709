package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/payment"
	"github.com/iliyamo/live-room-interactions/internal/queue"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/reveal"
)

// fakeStore is an in-memory stand-in for *repository.Store implementing the
// same guarded transition semantics.
type fakeStore struct {
	sessions map[uint64]*model.Session
	requests map[uint64]*model.Request
	credits  []model.LedgerEvent
	nextID   uint64

	// staleOnce makes the next TransitionRequest fail with ErrStaleStatus
	// without touching the row, simulating a concurrent writer.
	staleOnce bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uint64]*model.Session),
		requests: make(map[uint64]*model.Request),
	}
}

func (f *fakeStore) addSession(s *model.Session) *model.Session {
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now().UTC()
	f.sessions[s.ID] = s
	return s
}

func (f *fakeStore) Session(ctx context.Context, id uint64) (*model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ActiveSessionByRoom(ctx context.Context, roomID uint64) (*model.Session, error) {
	for _, s := range f.sessions {
		if s.RoomID == roomID && s.State == model.SessionActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) StartSession(ctx context.Context, newSess *model.Session, now time.Time) (*model.Session, []uint64, error) {
	var (
		ended   *model.Session
		expired []uint64
	)
	for _, s := range f.sessions {
		if s.RoomID == newSess.RoomID && s.State == model.SessionActive && s.HostID != newSess.HostID {
			return nil, nil, repository.ErrRoomBusy
		}
	}
	for _, s := range f.sessions {
		if s.HostID == newSess.HostID && s.State == model.SessionActive {
			e, ids, err := f.EndSession(ctx, s.ID, now)
			if err != nil {
				return nil, nil, err
			}
			ended, expired = e, ids
		}
	}
	newSess.State = model.SessionActive
	f.addSession(newSess)
	return ended, expired, nil
}

func (f *fakeStore) EndSession(ctx context.Context, sessionID uint64, now time.Time) (*model.Session, []uint64, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil, repository.ErrSessionNotFound
	}
	if s.State == model.SessionEnded {
		cp := *s
		return &cp, nil, nil
	}
	var expired []uint64
	for _, r := range f.requests {
		if r.SessionID == sessionID && !r.Terminal() {
			r.Status = model.StatusExpired
			t := now.UTC()
			r.TerminalAt = &t
			expired = append(expired, r.ID)
		}
	}
	s.State = model.SessionEnded
	endedAt := now.UTC()
	s.EndedAt = &endedAt
	cp := *s
	return &cp, expired, nil
}

func (f *fakeStore) UpdateSessionConfig(ctx context.Context, sessionID uint64, tiers []model.PriceTier, private bool, unlockPriceCents uint32) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Tiers = tiers
	s.Private = private
	s.UnlockPriceCents = unlockPriceCents
	return nil
}

func (f *fakeStore) Request(ctx context.Context, id uint64) (*model.Request, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) CreateRequest(ctx context.Context, req *model.Request, credit *model.LedgerEvent) error {
	f.nextID++
	req.ID = f.nextID
	req.CreatedAt = time.Now().UTC()
	cp := *req
	f.requests[req.ID] = &cp
	if credit != nil {
		credit.SessionID = req.SessionID
		credit.ParticipantID = req.SubmitterID
		f.credits = append(f.credits, *credit)
	}
	return nil
}

func (f *fakeStore) TransitionRequest(ctx context.Context, id uint64, fromStatus, toStatus string, responseText *string, credit *model.LedgerEvent, now time.Time) (*model.Request, error) {
	if f.staleOnce {
		f.staleOnce = false
		return nil, repository.ErrStaleStatus
	}
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	if r.Status != fromStatus {
		return nil, repository.ErrStaleStatus
	}
	r.Status = toStatus
	if responseText != nil {
		r.ResponseText = responseText
	}
	if model.TerminalStatus(toStatus) {
		t := now.UTC()
		r.TerminalAt = &t
	}
	if credit != nil {
		credit.SessionID = r.SessionID
		credit.ParticipantID = r.SubmitterID
		f.credits = append(f.credits, *credit)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) PendingRequests(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	var out []model.Request
	for _, r := range f.requests {
		if r.SessionID == sessionID && r.Status == model.StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fakePayments records authorize/void calls and can decline on demand.
type fakePayments struct {
	decline    bool
	authorized []uint32
	voided     []string
	unlocked   map[uint64]bool // participant id -> standing access
}

func (f *fakePayments) Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error) {
	if f.decline {
		return "", payment.ErrPaymentDeclined
	}
	f.authorized = append(f.authorized, amountCents)
	return "ref-1", nil
}

func (f *fakePayments) Void(ctx context.Context, ref string) error {
	f.voided = append(f.voided, ref)
	return nil
}

func (f *fakePayments) HasStandingAccess(ctx context.Context, sessionID, participantID uint64) (bool, error) {
	return f.unlocked[participantID], nil
}

type fakeFeed struct {
	events []queue.RowEvent
}

func (f *fakeFeed) Publish(ctx context.Context, ev queue.RowEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeCues struct {
	cues []fanout.Cue
}

func (f *fakeCues) Publish(ctx context.Context, cue fanout.Cue) error {
	f.cues = append(f.cues, cue)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakePayments, *fakeFeed, *fakeCues) {
	store := newFakeStore()
	pay := &fakePayments{unlocked: make(map[uint64]bool)}
	feed := &fakeFeed{}
	cues := &fakeCues{}
	svc := NewService(store, pay, feed, cues, reveal.NewTimers())
	return svc, store, pay, feed, cues
}

func activeSession(store *fakeStore) *model.Session {
	return store.addSession(&model.Session{
		RoomID: 7,
		HostID: 1,
		State:  model.SessionActive,
		Tiers: []model.PriceTier{
			{Name: "silver", PriceCents: 500, Label: "Silver"},
			{Name: "gold", PriceCents: 1500, Label: "Gold"},
		},
	})
}

func TestSubmitTierPurchase(t *testing.T) {
	svc, store, pay, feed, _ := newTestService()
	sess := activeSession(store)

	req, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42, DisplayName: "ana"},
		Kind:      model.TierPurchase{Tier: "gold"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.AmountCents != 1500 {
		t.Errorf("amount = %d, want menu price 1500", req.AmountCents)
	}
	if req.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING", req.Status)
	}
	if req.CommandID == "" {
		t.Error("command id should be generated when absent")
	}
	if len(pay.authorized) != 1 || pay.authorized[0] != 1500 {
		t.Errorf("authorized = %v, want [1500]", pay.authorized)
	}
	// A servable request earns its credit at ANSWERED, not at creation.
	if len(store.credits) != 0 {
		t.Errorf("credits at creation = %d, want 0", len(store.credits))
	}
	if len(feed.events) != 1 || feed.events[0].Op != queue.OpInsert {
		t.Fatalf("expected one insert feed event, got %+v", feed.events)
	}
}

func TestSubmitUnknownTier(t *testing.T) {
	svc, store, pay, _, _ := newTestService()
	sess := activeSession(store)

	_, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.TierPurchase{Tier: "platinum"},
	})
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("err = %v, want ErrUnknownTier", err)
	}
	if len(pay.authorized) != 0 {
		t.Error("unknown tier must not reach the payment provider")
	}
}

func TestSubmitDeclinedWritesNothing(t *testing.T) {
	svc, store, pay, feed, _ := newTestService()
	sess := activeSession(store)
	pay.decline = true

	_, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.TierPurchase{Tier: "silver"},
	})
	if !errors.Is(err, payment.ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined", err)
	}
	if len(store.requests) != 0 {
		t.Error("declined submission must not create a request")
	}
	if len(feed.events) != 0 {
		t.Error("declined submission must not publish feed events")
	}
}

func TestSubmitInactiveSession(t *testing.T) {
	svc, store, _, _, _ := newTestService()
	sess := activeSession(store)
	store.sessions[sess.ID].State = model.SessionEnded

	_, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.Tip{AmountCents: 100},
	})
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("err = %v, want ErrSessionNotActive", err)
	}
}

func TestSubmitPrivateRequiresUnlock(t *testing.T) {
	svc, store, pay, _, _ := newTestService()
	sess := activeSession(store)
	store.sessions[sess.ID].Private = true
	store.sessions[sess.ID].UnlockPriceCents = 300

	_, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.Tip{AmountCents: 100},
	})
	if !errors.Is(err, ErrUnlockRequired) {
		t.Fatalf("err = %v, want ErrUnlockRequired", err)
	}

	pay.unlocked[42] = true
	if _, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.Tip{AmountCents: 100},
	}); err != nil {
		t.Fatalf("Submit after unlock: %v", err)
	}
}

func TestSubmitTipSettlesImmediately(t *testing.T) {
	svc, store, _, _, _ := newTestService()
	sess := activeSession(store)

	req, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42, DisplayName: "ana"},
		Kind:      model.Tip{AmountCents: 250, Note: "gg"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != model.StatusAccepted {
		t.Errorf("status = %s, want ACCEPTED", req.Status)
	}
	if req.TerminalAt == nil {
		t.Error("tip must carry terminal_at at creation")
	}
	if len(store.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(store.credits))
	}
	if c := store.credits[0]; c.Category != model.LedgerTip || c.AmountCents != 250 {
		t.Errorf("credit = %+v, want TIP/250", c)
	}
}

func TestTransitionHappyPathAndCredit(t *testing.T) {
	svc, store, _, feed, cues := newTestService()
	sess := activeSession(store)

	req, err := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.CustomRequest{Type: "dare", Text: "sing"},
		// Client-proposed price for custom requests.
		AmountCents: 900,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, to := range []string{model.StatusServed, model.StatusAccepted} {
		if _, err := svc.Transition(context.Background(), req.ID, to, nil); err != nil {
			t.Fatalf("Transition to %s: %v", to, err)
		}
		if len(store.credits) != 0 {
			t.Fatalf("credit before ANSWERED at %s", to)
		}
	}

	text := "done on stream"
	updated, err := svc.Transition(context.Background(), req.ID, model.StatusAnswered, &text)
	if err != nil {
		t.Fatalf("Transition to ANSWERED: %v", err)
	}
	if updated.AmountCents != 900 {
		t.Errorf("amount changed across transitions: %d", updated.AmountCents)
	}
	if updated.ResponseText == nil || *updated.ResponseText != text {
		t.Errorf("response text = %v, want %q", updated.ResponseText, text)
	}
	if len(store.credits) != 1 || store.credits[0].Category != model.LedgerCustom {
		t.Fatalf("credits = %+v, want one CUSTOM credit", store.credits)
	}
	// The reveal cue is suspense-delayed, never immediate.
	if len(cues.cues) != 0 {
		t.Errorf("cue published before suspense delay: %+v", cues.cues)
	}
	if !svc.suspense.Pending(sess.ID) {
		t.Error("response reveal timer should be armed")
	}
	// insert + 3 updates
	if len(feed.events) != 4 {
		t.Errorf("feed events = %d, want 4", len(feed.events))
	}
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	svc, store, _, feed, _ := newTestService()
	sess := activeSession(store)
	req, _ := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.TierPurchase{Tier: "silver"},
	})
	before := len(feed.events)

	got, err := svc.Transition(context.Background(), req.ID, model.StatusPending, nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %s", got.Status)
	}
	if len(feed.events) != before {
		t.Error("no-op transition must not publish feed events")
	}
}

func TestTransitionStaleRaceClassification(t *testing.T) {
	svc, store, _, _, _ := newTestService()
	sess := activeSession(store)
	req, _ := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.TierPurchase{Tier: "silver"},
	})

	// Concurrent writer already landed the row on our target: duplicate
	// delivery, treated as success.
	store.requests[req.ID].Status = model.StatusServed
	store.staleOnce = true
	got, err := svc.Transition(context.Background(), req.ID, model.StatusServed, nil)
	if err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}
	if got.Status != model.StatusServed {
		t.Errorf("status = %s, want SERVED", got.Status)
	}

	// Concurrent writer settled the row terminally.
	store.requests[req.ID].Status = model.StatusDeclined
	store.staleOnce = true
	got, err = svc.Transition(context.Background(), req.ID, model.StatusServed, nil)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("err = %v, want ErrAlreadyTerminal", err)
	}
	if got == nil || got.Status != model.StatusDeclined {
		t.Errorf("caller must receive the settled row, got %+v", got)
	}
}

func TestTransitionTerminalIsIdempotent(t *testing.T) {
	svc, store, _, _, _ := newTestService()
	sess := activeSession(store)
	req, _ := svc.Submit(context.Background(), SubmitInput{
		SessionID: sess.ID,
		Submitter: Submitter{ID: 42},
		Kind:      model.TierPurchase{Tier: "silver"},
	})
	if _, err := svc.Transition(context.Background(), req.ID, model.StatusDeclined, nil); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// Declining twice targets the current status: plain no-op success.
	if _, err := svc.Transition(context.Background(), req.ID, model.StatusDeclined, nil); err != nil {
		t.Fatalf("second decline: %v", err)
	}
	// Any other move out of a terminal state reports ErrAlreadyTerminal.
	if _, err := svc.Transition(context.Background(), req.ID, model.StatusServed, nil); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("err = %v, want ErrAlreadyTerminal", err)
	}
	// No refund path on decline.
	if len(store.credits) != 0 {
		t.Errorf("credits after decline = %+v, want none", store.credits)
	}
}
