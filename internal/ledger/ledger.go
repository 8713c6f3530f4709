package ledger

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/queue"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/reveal"
)

// Store is the slice of the durable store the ledger needs.
// *repository.Store satisfies it.
type Store interface {
	Session(ctx context.Context, id uint64) (*model.Session, error)
	ActiveSessionByRoom(ctx context.Context, roomID uint64) (*model.Session, error)
	StartSession(ctx context.Context, newSess *model.Session, now time.Time) (*model.Session, []uint64, error)
	EndSession(ctx context.Context, sessionID uint64, now time.Time) (*model.Session, []uint64, error)
	UpdateSessionConfig(ctx context.Context, sessionID uint64, tiers []model.PriceTier, private bool, unlockPriceCents uint32) error

	Request(ctx context.Context, id uint64) (*model.Request, error)
	CreateRequest(ctx context.Context, req *model.Request, credit *model.LedgerEvent) error
	TransitionRequest(ctx context.Context, id uint64, fromStatus, toStatus string, responseText *string, credit *model.LedgerEvent, now time.Time) (*model.Request, error)
	PendingRequests(ctx context.Context, sessionID uint64) ([]model.Request, error)
}

// Payments is the Entitlement Service collaborator.
// *payment.Entitlements satisfies it.
type Payments interface {
	Authorize(ctx context.Context, participantID uint64, amountCents uint32) (string, error)
	Void(ctx context.Context, ref string) error
	HasStandingAccess(ctx context.Context, sessionID, participantID uint64) (bool, error)
}

// Feed publishes durable change-feed events.  *queue.Publisher satisfies
// it.  Feed failures are tolerated: the row is already committed and
// clients reconcile against the store.
type Feed interface {
	Publish(ctx context.Context, ev queue.RowEvent) error
}

// CueSink publishes ephemeral cues.  *fanout.CueBus satisfies it.
type CueSink interface {
	Publish(ctx context.Context, cue fanout.Cue) error
}

// Service implements the request ledger and session lifecycle.
type Service struct {
	store    Store
	payments Payments
	feed     Feed
	cues     CueSink
	suspense *reveal.Timers
	now      func() time.Time
}

// NewService wires the ledger.  The suspense timer set is shared with the
// serve controller so a newer serve can cancel a pending reveal.
func NewService(store Store, payments Payments, feed Feed, cues CueSink, suspense *reveal.Timers) *Service {
	return &Service{
		store:    store,
		payments: payments,
		feed:     feed,
		cues:     cues,
		suspense: suspense,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submitter identifies the paying participant.
type Submitter struct {
	ID          uint64
	DisplayName string
}

// SubmitInput describes one submission attempt.  AmountCents is the
// client-proposed price for CUSTOM and VOTE kinds; tier purchases derive
// their price from the session menu and tips carry theirs in the payload.
type SubmitInput struct {
	SessionID   uint64
	Submitter   Submitter
	Kind        model.Kind
	AmountCents uint32
	// CommandID tags the provisional client-side entry; generated when
	// the client does not supply one.
	CommandID string
}

// resolveAmount fixes the charge for a submission.  This is the only place
// an amount is ever computed; it is stored on the row at creation and
// never re-derived.
func resolveAmount(sess *model.Session, in SubmitInput) (uint32, error) {
	switch k := in.Kind.(type) {
	case model.TierPurchase:
		tier, ok := sess.Tier(k.Tier)
		if !ok {
			return 0, ErrUnknownTier
		}
		return tier.PriceCents, nil
	case model.CustomRequest:
		return in.AmountCents, nil
	case model.Tip:
		return k.AmountCents, nil
	case model.Vote:
		return in.AmountCents, nil
	}
	return 0, errors.New("ledger: unhandled request kind")
}

// Submit authorizes the amount and creates the request.  On
// payment.ErrPaymentDeclined or ErrSessionNotActive nothing is written.
// Tips and votes skip the serve flow entirely: they are created already
// ACCEPTED and credited to the monetary ledger in the same transaction,
// since they carry no host performance obligation.  Tier and custom
// requests are created PENDING and credited only when answered.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*model.Request, error) {
	sess, err := s.store.Session(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != model.SessionActive {
		return nil, ErrSessionNotActive
	}
	if sess.Private {
		ok, err := s.payments.HasStandingAccess(ctx, sess.ID, in.Submitter.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrUnlockRequired
		}
	}
	amount, err := resolveAmount(sess, in)
	if err != nil {
		return nil, err
	}

	ref, err := s.payments.Authorize(ctx, in.Submitter.ID, amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req := &model.Request{
		SessionID:     sess.ID,
		SubmitterID:   in.Submitter.ID,
		SubmitterName: in.Submitter.DisplayName,
		Kind:          in.Kind,
		AmountCents:   amount,
		Status:        model.StatusPending,
		CommandID:     in.CommandID,
	}
	if req.CommandID == "" {
		req.CommandID = uuid.NewString()
	}
	if ref != "" {
		req.PaymentRef = &ref
	}

	var credit *model.LedgerEvent
	if !in.Kind.Servable() {
		req.Status = model.StatusAccepted
		terminalAt := now
		req.TerminalAt = &terminalAt
		credit = &model.LedgerEvent{
			RoomID:      sess.RoomID,
			Category:    creditCategory(in.Kind),
			AmountCents: amount,
		}
	}

	if err := s.store.CreateRequest(ctx, req, credit); err != nil {
		// The authorization is orphaned; release it so the participant
		// is not charged for a request that never existed.
		if voidErr := s.payments.Void(ctx, ref); voidErr != nil {
			log.Printf("ledger: void after failed insert (ref=%s): %v", ref, voidErr)
		}
		return nil, err
	}

	s.publishRequest(ctx, queue.OpInsert, sess.RoomID, req)
	return req, nil
}

// Transition moves a request along the state machine.  Targeting the
// current status is an idempotent no-op; targeting anything from a
// terminal status returns ErrAlreadyTerminal together with the stored row
// so callers can answer with the settled state.  The ANSWERED transition
// credits the monetary ledger and, after the suspense delay, cues the
// submitting participant's reveal.
func (s *Service) Transition(ctx context.Context, requestID uint64, toStatus string, responseText *string) (*model.Request, error) {
	req, err := s.store.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == toStatus {
		return req, nil
	}
	if err := CanTransition(req.Kind, req.Status, toStatus); err != nil {
		return req, err
	}
	sess, err := s.store.Session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	var credit *model.LedgerEvent
	if toStatus == model.StatusAnswered {
		credit = &model.LedgerEvent{
			RoomID:      sess.RoomID,
			Category:    creditCategory(req.Kind),
			AmountCents: req.AmountCents,
		}
	}

	updated, err := s.store.TransitionRequest(ctx, requestID, req.Status, toStatus, responseText, credit, s.now())
	if errors.Is(err, repository.ErrStaleStatus) {
		// Another writer moved the row first.  Re-read and classify:
		// landing on the target is duplicate delivery (success), landing
		// terminal is ErrAlreadyTerminal, anything else is a stale view.
		current, readErr := s.store.Request(ctx, requestID)
		if readErr != nil {
			return nil, readErr
		}
		if current.Status == toStatus {
			return current, nil
		}
		if current.Terminal() {
			return current, ErrAlreadyTerminal
		}
		return current, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	s.publishRequest(ctx, queue.OpUpdate, sess.RoomID, updated)

	if updated.Status == model.StatusAnswered {
		s.scheduleResponseReveal(sess.RoomID, updated)
	}
	return updated, nil
}

// scheduleResponseReveal arms the cosmetic suspense delay between the
// ANSWERED transition and the submitter-facing response_ready cue.  The
// transition is already final; cancelling the timer (session end, a newer
// serve) only suppresses the cue, never the state.
func (s *Service) scheduleResponseReveal(roomID uint64, req *model.Request) {
	sessionID := req.SessionID
	cue := fanout.Cue{
		Type:             fanout.CueResponseReady,
		RoomID:           roomID,
		SessionID:        sessionID,
		RequestID:        req.ID,
		ForParticipantID: req.SubmitterID,
		ResponseText:     req.ResponseText,
	}
	s.suspense.Schedule(sessionID, reveal.SuspenseDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cues.Publish(ctx, cue); err != nil {
			log.Printf("ledger: response_ready cue for request %d: %v", req.ID, err)
		}
	})
}

// PendingRequests is the one-shot reconciliation pull for a session.
func (s *Service) PendingRequests(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	return s.store.PendingRequests(ctx, sessionID)
}

// publishRequest emits the durable change-feed event for a request row.
// Feed errors only delay visibility: the row is committed and clients
// reconcile against the store.
func (s *Service) publishRequest(ctx context.Context, op string, roomID uint64, req *model.Request) {
	if err := s.feed.Publish(ctx, queue.RequestEvent(op, roomID, req)); err != nil {
		log.Printf("ledger: feed publish request %d: %v", req.ID, err)
	}
}

func (s *Service) publishSession(ctx context.Context, op string, sess *model.Session) {
	if err := s.feed.Publish(ctx, queue.SessionEvent(op, sess)); err != nil {
		log.Printf("ledger: feed publish session %d: %v", sess.ID, err)
	}
}
