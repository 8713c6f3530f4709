package ledger

import (
	"context"
	"log"

	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/queue"
	"github.com/iliyamo/live-room-interactions/internal/repository"
)

// StartInput configures a new session.
type StartInput struct {
	RoomID           uint64
	HostID           uint64
	Tiers            []model.PriceTier
	Private          bool
	UnlockPriceCents uint32
	// Resume asks for the host's already-active session in the room
	// instead of starting a fresh one.  Resuming is idempotent: it is
	// treated as no transition at all.
	Resume bool
}

// StartSession activates a session for the host.  One active session per
// host: any other ACTIVE session owned by the same host is force-ended
// first, which expires its live requests and clears its serve slot in the
// same transaction.  One active session per room too: starting in a room
// occupied by another host's live session fails with ErrRoomBusy.  The
// hygiene cascade's feed events are emitted after commit.
func (s *Service) StartSession(ctx context.Context, in StartInput) (*model.Session, error) {
	if in.Resume {
		existing, err := s.store.ActiveSessionByRoom(ctx, in.RoomID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.HostID == in.HostID {
			return existing, nil
		}
		// Nothing to resume; fall through to a fresh start.
	}

	newSess := &model.Session{
		RoomID:           in.RoomID,
		HostID:           in.HostID,
		Tiers:            in.Tiers,
		Private:          in.Private,
		UnlockPriceCents: in.UnlockPriceCents,
	}
	ended, expired, err := s.store.StartSession(ctx, newSess, s.now())
	if err != nil {
		return nil, err
	}
	if ended != nil {
		s.announceEnd(ctx, ended, expired)
	}
	s.publishSession(ctx, queue.OpInsert, newSess)
	return newSess, nil
}

// EndSession terminates the host's session and cascades: live requests
// expire, the serve slot clears, entitlements remain.  Any pending
// suspense reveal is cancelled so the submitting participant's client
// stops waiting.  Ending twice is a no-op.
func (s *Service) EndSession(ctx context.Context, hostID, sessionID uint64) (*model.Session, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.HostID != hostID {
		return nil, repository.ErrForbidden
	}
	if sess.State == model.SessionEnded {
		return sess, nil
	}
	ended, expired, err := s.store.EndSession(ctx, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	s.announceEnd(ctx, ended, expired)
	return ended, nil
}

// ForceEndSession is EndSession without the ownership check, for remote
// force-end (moderation) paths.
func (s *Service) ForceEndSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	ended, expired, err := s.store.EndSession(ctx, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	s.announceEnd(ctx, ended, expired)
	return ended, nil
}

// announceEnd publishes the post-commit fallout of an end cascade: the
// session row update, one row update per force-expired request, the
// session_ended cue, and cancellation of any armed suspense reveal.
func (s *Service) announceEnd(ctx context.Context, sess *model.Session, expiredIDs []uint64) {
	s.suspense.Cancel(sess.ID)
	s.publishSession(ctx, queue.OpUpdate, sess)
	for _, id := range expiredIDs {
		req, err := s.store.Request(ctx, id)
		if err != nil {
			log.Printf("ledger: read expired request %d: %v", id, err)
			continue
		}
		s.publishRequest(ctx, queue.OpUpdate, sess.RoomID, req)
	}
	if err := s.cues.Publish(ctx, fanout.Cue{
		Type:      fanout.CueSessionEnded,
		RoomID:    sess.RoomID,
		SessionID: sess.ID,
	}); err != nil {
		log.Printf("ledger: session_ended cue for session %d: %v", sess.ID, err)
	}
}

// UpdateConfig edits the pricing menu, privacy flag and unlock price of a
// session that has not ended.
func (s *Service) UpdateConfig(ctx context.Context, hostID, sessionID uint64, tiers []model.PriceTier, private bool, unlockPriceCents uint32) (*model.Session, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.HostID != hostID {
		return nil, repository.ErrForbidden
	}
	if err := s.store.UpdateSessionConfig(ctx, sessionID, tiers, private, unlockPriceCents); err != nil {
		return nil, err
	}
	updated, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, queue.OpUpdate, updated)
	return updated, nil
}

// Session exposes a point read for handlers.
func (s *Service) Session(ctx context.Context, id uint64) (*model.Session, error) {
	return s.store.Session(ctx, id)
}

// Request exposes a point read for handlers.
func (s *Service) Request(ctx context.Context, id uint64) (*model.Request, error) {
	return s.store.Request(ctx, id)
}
