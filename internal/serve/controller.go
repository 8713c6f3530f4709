// Package serve implements the host-side queue discipline: which PENDING
// request becomes the single "now serving" slot, the double amplifier, and
// the replay window.  Only the host mutates this state, so no in-process
// locking is needed; hosts on multiple devices reconcile through the
// durable store, where last-host-action-wins is acceptable because the
// slot is a presentation concern and the underlying request statuses stay
// monotonic regardless.
package serve

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/reveal"
)

// ErrNotPending rejects serving a request that is not PENDING.
var ErrNotPending = errors.New("request not pending")

// ErrNotServable rejects serving a tip or vote; they never occupy the
// serve slot.
var ErrNotServable = errors.New("request kind not servable")

// Store is the slice of the durable store the controller needs.
// *repository.Store satisfies it.
type Store interface {
	Session(ctx context.Context, id uint64) (*model.Session, error)
	Request(ctx context.Context, id uint64) (*model.Request, error)
	PendingServable(ctx context.Context, sessionID uint64) ([]model.Request, error)
	PlaceSlot(ctx context.Context, slot *model.ServeSlot) (bool, error)
	Slot(ctx context.Context, sessionID uint64) (*model.ServeSlot, error)
	ClearSlot(ctx context.Context, sessionID uint64) error
	ArmDouble(ctx context.Context, sessionID uint64, armed bool) error
	SetReplayUntil(ctx context.Context, sessionID uint64, until *time.Time) error
}

// Transitioner is the ledger edge the controller drives.  *ledger.Service
// satisfies it.
type Transitioner interface {
	Transition(ctx context.Context, requestID uint64, toStatus string, responseText *string) (*model.Request, error)
}

// Controller decides what is being served.
type Controller struct {
	store    Store
	ledger   Transitioner
	cues     ledger.CueSink
	suspense *reveal.Timers
	now      func() time.Time
}

// NewController wires the serve controller.  The suspense timer set is the
// one shared with the ledger: serving a new item cancels a pending
// response reveal so a stale timer cannot resurrect a superseded request.
func NewController(store Store, lg Transitioner, cues ledger.CueSink, suspense *reveal.Timers) *Controller {
	return &Controller{
		store:    store,
		ledger:   lg,
		cues:     cues,
		suspense: suspense,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ownedActive loads the session and checks host ownership and liveness.
func (c *Controller) ownedActive(ctx context.Context, hostID, sessionID uint64) (*model.Session, error) {
	sess, err := c.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.HostID != hostID {
		return nil, repository.ErrForbidden
	}
	if sess.State != model.SessionActive {
		return nil, ledger.ErrSessionNotActive
	}
	return sess, nil
}

// Queue returns the PENDING servable requests in strict creation order.
// Tips and votes never appear: they are aggregated, not served.
func (c *Controller) Queue(ctx context.Context, hostID, sessionID uint64) ([]model.Request, error) {
	if _, err := c.ownedActive(ctx, hostID, sessionID); err != nil {
		return nil, err
	}
	return c.store.PendingServable(ctx, sessionID)
}

// Serve makes the request the session's current slot.  The request must be
// of a servable kind and PENDING — or already SERVED, so a retry after a
// failed slot write converges instead of erroring; it transitions to
// SERVED, any previous slot is replaced without touching its request, the
// armed double flag is consumed onto the new slot, and the countdown_start
// cue is published with the single absolute started_at every client
// derives its countdown from.
func (c *Controller) Serve(ctx context.Context, hostID, sessionID, requestID uint64) (*model.ServeSlot, error) {
	sess, err := c.ownedActive(ctx, hostID, sessionID)
	if err != nil {
		return nil, err
	}
	req, err := c.store.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SessionID != sessionID {
		return nil, repository.ErrForbidden
	}
	if !req.Kind.Servable() {
		return nil, ErrNotServable
	}
	if req.Status != model.StatusPending && req.Status != model.StatusServed {
		return nil, ErrNotPending
	}

	if req.Status == model.StatusPending {
		if _, err := c.ledger.Transition(ctx, requestID, model.StatusServed, nil); err != nil {
			return nil, err
		}
	}

	slot := &model.ServeSlot{
		SessionID:       sessionID,
		RequestID:       requestID,
		StartedAt:       c.now(),
		DurationSeconds: uint32(reveal.CountdownDuration / time.Second),
	}
	doubled, err := c.store.PlaceSlot(ctx, slot)
	if err != nil {
		return nil, err
	}

	// A new serve supersedes whatever reveal was still pending for this
	// session; the stale timer must not fire over the new slot.
	c.suspense.Cancel(sessionID)

	startedAt := slot.StartedAt
	if err := c.cues.Publish(ctx, fanout.Cue{
		Type:            fanout.CueCountdownStart,
		RoomID:          sess.RoomID,
		SessionID:       sessionID,
		RequestID:       requestID,
		StartedAt:       &startedAt,
		DurationSeconds: slot.DurationSeconds,
		Doubled:         doubled,
	}); err != nil {
		log.Printf("serve: countdown_start cue for request %d: %v", requestID, err)
	}
	return slot, nil
}

// Clear drops the slot without altering the underlying request's status.
func (c *Controller) Clear(ctx context.Context, hostID, sessionID uint64) error {
	sess, err := c.ownedActive(ctx, hostID, sessionID)
	if err != nil {
		return err
	}
	if err := c.store.ClearSlot(ctx, sessionID); err != nil {
		return err
	}
	if err := c.cues.Publish(ctx, fanout.Cue{
		Type:      fanout.CueSlotCleared,
		RoomID:    sess.RoomID,
		SessionID: sessionID,
	}); err != nil {
		log.Printf("serve: slot_cleared cue for session %d: %v", sessionID, err)
	}
	return nil
}

// Slot returns the current serve slot, or nil when nothing is showing.
func (c *Controller) Slot(ctx context.Context, sessionID uint64) (*model.ServeSlot, error) {
	return c.store.Slot(ctx, sessionID)
}

// ArmDouble toggles the per-session double amplifier.  The flag attaches
// to the next served request (copy-on-serve) and is cleared by that serve.
func (c *Controller) ArmDouble(ctx context.Context, hostID, sessionID uint64, armed bool) error {
	if _, err := c.ownedActive(ctx, hostID, sessionID); err != nil {
		return err
	}
	return c.store.ArmDouble(ctx, sessionID, armed)
}

// OpenReplay opens a time-boxed replay window on the session, independent
// of any request lifecycle.  Presentation logic is the only consumer.
func (c *Controller) OpenReplay(ctx context.Context, hostID, sessionID uint64, window time.Duration) (time.Time, error) {
	if _, err := c.ownedActive(ctx, hostID, sessionID); err != nil {
		return time.Time{}, err
	}
	until := c.now().Add(window)
	if err := c.store.SetReplayUntil(ctx, sessionID, &until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}
