package serve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/reveal"
)

type fakeStore struct {
	sessions map[uint64]*model.Session
	requests map[uint64]*model.Request
	slots    map[uint64]*model.ServeSlot
	armed    map[uint64]bool
	replay   map[uint64]*time.Time
	// placeSlotErr fails the next PlaceSlot call, once.
	placeSlotErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uint64]*model.Session),
		requests: make(map[uint64]*model.Request),
		slots:    make(map[uint64]*model.ServeSlot),
		armed:    make(map[uint64]bool),
		replay:   make(map[uint64]*time.Time),
	}
}

func (f *fakeStore) Session(ctx context.Context, id uint64) (*model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) Request(ctx context.Context, id uint64) (*model.Request, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) PendingServable(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	var out []model.Request
	for _, r := range f.requests {
		if r.SessionID == sessionID && r.Status == model.StatusPending && r.Kind.Servable() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) PlaceSlot(ctx context.Context, slot *model.ServeSlot) (bool, error) {
	if f.placeSlotErr != nil {
		err := f.placeSlotErr
		f.placeSlotErr = nil
		return false, err
	}
	doubled := f.armed[slot.SessionID]
	f.armed[slot.SessionID] = false
	slot.Doubled = doubled
	cp := *slot
	f.slots[slot.SessionID] = &cp
	return doubled, nil
}

func (f *fakeStore) Slot(ctx context.Context, sessionID uint64) (*model.ServeSlot, error) {
	s, ok := f.slots[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ClearSlot(ctx context.Context, sessionID uint64) error {
	delete(f.slots, sessionID)
	return nil
}

func (f *fakeStore) ArmDouble(ctx context.Context, sessionID uint64, armed bool) error {
	f.armed[sessionID] = armed
	return nil
}

func (f *fakeStore) SetReplayUntil(ctx context.Context, sessionID uint64, until *time.Time) error {
	f.replay[sessionID] = until
	return nil
}

// fakeTransitioner applies the move directly, mimicking the ledger's
// guarded transition for the serve path.
type fakeTransitioner struct {
	store *fakeStore
	calls []string
}

func (f *fakeTransitioner) Transition(ctx context.Context, requestID uint64, toStatus string, responseText *string) (*model.Request, error) {
	f.calls = append(f.calls, toStatus)
	r, ok := f.store.requests[requestID]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	r.Status = toStatus
	cp := *r
	return &cp, nil
}

type fakeCues struct {
	cues []fanout.Cue
}

func (f *fakeCues) Publish(ctx context.Context, cue fanout.Cue) error {
	f.cues = append(f.cues, cue)
	return nil
}

func newTestController() (*Controller, *fakeStore, *fakeTransitioner, *fakeCues, *reveal.Timers) {
	store := newFakeStore()
	tr := &fakeTransitioner{store: store}
	cues := &fakeCues{}
	timers := reveal.NewTimers()
	ctl := NewController(store, tr, cues, timers)
	return ctl, store, tr, cues, timers
}

func seed(store *fakeStore) (*model.Session, *model.Request) {
	sess := &model.Session{ID: 1, RoomID: 7, HostID: 10, State: model.SessionActive}
	store.sessions[sess.ID] = sess
	req := &model.Request{
		ID:        100,
		SessionID: sess.ID,
		Kind:      model.TierPurchase{Tier: "gold"},
		Status:    model.StatusPending,
	}
	store.requests[req.ID] = req
	return sess, req
}

func TestServePlacesSlotAndStartsCountdown(t *testing.T) {
	ctl, store, tr, cues, _ := newTestController()
	sess, req := seed(store)

	slot, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if slot.RequestID != req.ID {
		t.Errorf("slot request = %d", slot.RequestID)
	}
	if slot.DurationSeconds != uint32(reveal.CountdownDuration/time.Second) {
		t.Errorf("duration = %d", slot.DurationSeconds)
	}
	if len(tr.calls) != 1 || tr.calls[0] != model.StatusServed {
		t.Errorf("transitions = %v, want [SERVED]", tr.calls)
	}
	if len(cues.cues) != 1 {
		t.Fatalf("cues = %d, want 1", len(cues.cues))
	}
	cue := cues.cues[0]
	if cue.Type != fanout.CueCountdownStart || cue.RoomID != sess.RoomID || cue.RequestID != req.ID {
		t.Errorf("cue = %+v", cue)
	}
	if cue.StartedAt == nil || !cue.StartedAt.Equal(slot.StartedAt) {
		t.Error("cue must carry the slot's absolute start instant")
	}
}

func TestServeRejectsWrongStates(t *testing.T) {
	ctl, store, _, _, _ := newTestController()
	sess, req := seed(store)

	if _, err := ctl.Serve(context.Background(), 999, sess.ID, req.ID); !errors.Is(err, repository.ErrForbidden) {
		t.Errorf("foreign host: %v", err)
	}

	tip := &model.Request{ID: 101, SessionID: sess.ID, Kind: model.Tip{AmountCents: 100}, Status: model.StatusPending}
	store.requests[tip.ID] = tip
	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, tip.ID); !errors.Is(err, ErrNotServable) {
		t.Errorf("tip: %v", err)
	}

	req.Status = model.StatusDeclined
	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("declined: %v", err)
	}

	other := &model.Request{ID: 102, SessionID: 55, Kind: model.TierPurchase{Tier: "x"}, Status: model.StatusPending}
	store.requests[other.ID] = other
	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, other.ID); !errors.Is(err, repository.ErrForbidden) {
		t.Errorf("cross-session: %v", err)
	}

	sess.State = model.SessionEnded
	req.Status = model.StatusPending
	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID); !errors.Is(err, ledger.ErrSessionNotActive) {
		t.Errorf("ended session: %v", err)
	}
}

func TestServeRetryAfterSlotWriteFailure(t *testing.T) {
	ctl, store, tr, _, _ := newTestController()
	sess, req := seed(store)

	store.placeSlotErr = errors.New("connection reset")
	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID); err == nil {
		t.Fatal("first serve should surface the slot write failure")
	}
	// The ledger move committed before the slot write; the request is
	// already SERVED with no slot showing.
	if store.requests[req.ID].Status != model.StatusServed {
		t.Fatalf("request = %s, want SERVED", store.requests[req.ID].Status)
	}

	slot, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if slot.RequestID != req.ID {
		t.Errorf("slot request = %d", slot.RequestID)
	}
	// The retry must not run a second SERVED transition.
	if len(tr.calls) != 1 {
		t.Errorf("transitions = %v, want one", tr.calls)
	}
}

func TestDoubleIsConsumedByNextServe(t *testing.T) {
	ctl, store, _, cues, _ := newTestController()
	sess, req := seed(store)
	second := &model.Request{ID: 101, SessionID: sess.ID, Kind: model.CustomRequest{Text: "x"}, Status: model.StatusPending}
	store.requests[second.ID] = second

	if err := ctl.ArmDouble(context.Background(), sess.HostID, sess.ID, true); err != nil {
		t.Fatalf("ArmDouble: %v", err)
	}

	slot, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !slot.Doubled || !cues.cues[0].Doubled {
		t.Error("armed double must apply to the served request")
	}

	// The amplifier is copy-on-serve: one use only.
	slot2, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, second.ID)
	if err != nil {
		t.Fatalf("second Serve: %v", err)
	}
	if slot2.Doubled {
		t.Error("double must be consumed by the first serve")
	}
}

func TestNewServeSupersedesSlotNotRequest(t *testing.T) {
	ctl, store, _, _, timers := newTestController()
	sess, first := seed(store)
	second := &model.Request{ID: 101, SessionID: sess.ID, Kind: model.CustomRequest{Text: "x"}, Status: model.StatusPending}
	store.requests[second.ID] = second

	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, first.ID); err != nil {
		t.Fatalf("first Serve: %v", err)
	}
	// A reveal timer left behind by an earlier answer must not survive.
	timers.Schedule(sess.ID, time.Hour, func() {})

	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, second.ID); err != nil {
		t.Fatalf("second Serve: %v", err)
	}
	slot, _ := ctl.Slot(context.Background(), sess.ID)
	if slot.RequestID != second.ID {
		t.Errorf("slot holds %d, want %d", slot.RequestID, second.ID)
	}
	// The superseded request keeps whatever status the ledger gave it.
	if store.requests[first.ID].Status != model.StatusServed {
		t.Errorf("first request = %s, want SERVED", store.requests[first.ID].Status)
	}
	if timers.Pending(sess.ID) {
		t.Error("serving must cancel the pending reveal timer")
	}
}

func TestClearSlotKeepsRequestStatus(t *testing.T) {
	ctl, store, _, cues, _ := newTestController()
	sess, req := seed(store)
	if _, err := ctl.Serve(context.Background(), sess.HostID, sess.ID, req.ID); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if err := ctl.Clear(context.Background(), sess.HostID, sess.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if slot, _ := ctl.Slot(context.Background(), sess.ID); slot != nil {
		t.Error("slot should be gone")
	}
	if store.requests[req.ID].Status != model.StatusServed {
		t.Errorf("request = %s, want SERVED untouched", store.requests[req.ID].Status)
	}
	last := cues.cues[len(cues.cues)-1]
	if last.Type != fanout.CueSlotCleared {
		t.Errorf("last cue = %s, want slot_cleared", last.Type)
	}
}

func TestOpenReplay(t *testing.T) {
	ctl, store, _, _, _ := newTestController()
	sess, _ := seed(store)

	until, err := ctl.OpenReplay(context.Background(), sess.HostID, sess.ID, 30*time.Second)
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	if stored := store.replay[sess.ID]; stored == nil || !stored.Equal(until) {
		t.Errorf("stored replay window %v, returned %v", stored, until)
	}
	if remaining := time.Until(until); remaining > 31*time.Second || remaining < 25*time.Second {
		t.Errorf("window = %v, want about 30s", remaining)
	}
}

func TestQueueFiltersToServable(t *testing.T) {
	ctl, store, _, _, _ := newTestController()
	sess, req := seed(store)
	store.requests[200] = &model.Request{ID: 200, SessionID: sess.ID, Kind: model.Tip{AmountCents: 5}, Status: model.StatusPending}

	queue, err := ctl.Queue(context.Background(), sess.HostID, sess.ID)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != req.ID {
		t.Errorf("queue = %+v, want only the tier request", queue)
	}
}
