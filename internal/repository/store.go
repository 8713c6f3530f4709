package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// dbtx is the intersection of *sql.DB and *sql.Tx used by helpers that run
// either standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store bundles the per-table repositories behind the multi-table,
// transaction-scoped operations the services need.  Single-table reads and
// writes go straight through the embedded repositories; anything that must
// be failure-atomic across tables (request + ledger credit, the session end
// cascade) lives here.
type Store struct {
	db *sql.DB

	Sessions     *SessionRepo
	Requests     *RequestRepo
	Entitlements *EntitlementRepo
	Ledger       *LedgerRepo
	Slots        *ServeSlotRepo
	Users        *UserRepo
	Tokens       *TokenRepo
}

// NewStore wires every repository onto the shared pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		Sessions:     NewSessionRepo(db),
		Requests:     NewRequestRepo(db),
		Entitlements: NewEntitlementRepo(db),
		Ledger:       NewLedgerRepo(db),
		Slots:        NewServeSlotRepo(db),
		Users:        NewUserRepo(db),
		Tokens:       NewTokenRepo(db),
	}
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Session returns one session by id.
func (s *Store) Session(ctx context.Context, id uint64) (*model.Session, error) {
	return s.Sessions.GetByID(ctx, id)
}

// ActiveSessionByRoom returns the room's ACTIVE session or nil.
func (s *Store) ActiveSessionByRoom(ctx context.Context, roomID uint64) (*model.Session, error) {
	return s.Sessions.ActiveByRoom(ctx, roomID)
}

// StartSession creates a new ACTIVE session for newSess.HostID, force-ending
// any other ACTIVE session of the same host first (one active session per
// host).  A room holds at most one ACTIVE session: if another host's
// session still occupies the room, the start fails with ErrRoomBusy
// instead of ending a session the caller does not own.  The whole hygiene
// cascade commits atomically.  It returns the previously active session
// (already ENDED) and the ids of its requests that were force-expired, so
// the caller can emit feed events for each.
func (s *Store) StartSession(ctx context.Context, newSess *model.Session, now time.Time) (*model.Session, []uint64, error) {
	var (
		ended   *model.Session
		expired []uint64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		occupant, err := s.Sessions.ActiveByRoomTx(ctx, tx, newSess.RoomID)
		if err != nil {
			return err
		}
		if occupant != nil && occupant.HostID != newSess.HostID {
			return ErrRoomBusy
		}
		prev, err := s.Sessions.ActiveByHostTx(ctx, tx, newSess.HostID)
		if err != nil {
			return err
		}
		if prev != nil {
			ids, err := s.Requests.ExpireLiveTx(ctx, tx, prev.ID, now)
			if err != nil {
				return err
			}
			if err := s.Slots.ClearTx(ctx, tx, prev.ID); err != nil {
				return err
			}
			if err := s.Sessions.EndTx(ctx, tx, prev.ID, now); err != nil {
				return err
			}
			prev.State = model.SessionEnded
			endedAt := now.UTC()
			prev.EndedAt = &endedAt
			ended = prev
			expired = ids
		}
		newSess.State = model.SessionActive
		return s.Sessions.CreateTx(ctx, tx, newSess)
	})
	if err != nil {
		return nil, nil, err
	}
	return ended, expired, nil
}

// EndSession marks the session ENDED and cascades: every live request
// becomes EXPIRED and the serve slot is cleared, all in one transaction.
// Entitlement rows are untouched; they remain as the historical access
// record.  Ending an already-ended session is a no-op that returns the
// session as stored.
func (s *Store) EndSession(ctx context.Context, sessionID uint64, now time.Time) (*model.Session, []uint64, error) {
	var (
		sess    *model.Session
		expired []uint64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.Sessions.GetByIDTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if cur.State == model.SessionEnded {
			sess = cur
			return nil
		}
		ids, err := s.Requests.ExpireLiveTx(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}
		if err := s.Slots.ClearTx(ctx, tx, sessionID); err != nil {
			return err
		}
		if err := s.Sessions.EndTx(ctx, tx, sessionID, now); err != nil {
			return err
		}
		cur.State = model.SessionEnded
		endedAt := now.UTC()
		cur.EndedAt = &endedAt
		sess = cur
		expired = ids
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, expired, nil
}

// UpdateSessionConfig replaces the pricing menu, privacy flag and unlock
// price of a live session.
func (s *Store) UpdateSessionConfig(ctx context.Context, sessionID uint64, tiers []model.PriceTier, private bool, unlockPriceCents uint32) error {
	return s.Sessions.UpdateConfig(ctx, sessionID, tiers, private, unlockPriceCents)
}

// ArmDouble sets or clears the session's pending double amplifier.
func (s *Store) ArmDouble(ctx context.Context, sessionID uint64, armed bool) error {
	return s.Sessions.ArmDouble(ctx, sessionID, armed)
}

// SetReplayUntil opens or closes the session's replay window.
func (s *Store) SetReplayUntil(ctx context.Context, sessionID uint64, until *time.Time) error {
	return s.Sessions.SetReplayUntil(ctx, sessionID, until)
}

// Request returns one request by id.
func (s *Store) Request(ctx context.Context, id uint64) (*model.Request, error) {
	return s.Requests.GetByID(ctx, id)
}

// CreateRequest inserts a request and, when credit is non-nil, its ledger
// event in the same transaction.  Tips and votes are credited at creation;
// tier and custom requests earn their credit only on the ANSWERED
// transition.
func (s *Store) CreateRequest(ctx context.Context, req *model.Request, credit *model.LedgerEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Requests.CreateTx(ctx, tx, req); err != nil {
			return err
		}
		if credit != nil {
			credit.SessionID = req.SessionID
			credit.ParticipantID = req.SubmitterID
			return s.Ledger.AppendTx(ctx, tx, credit)
		}
		return nil
	})
}

// TransitionRequest performs the guarded status move plus the optional
// ledger credit atomically.  ErrStaleStatus propagates untouched so the
// service can re-read and classify the race.
func (s *Store) TransitionRequest(ctx context.Context, id uint64, fromStatus, toStatus string, responseText *string, credit *model.LedgerEvent, now time.Time) (*model.Request, error) {
	var updated *model.Request
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		req, err := s.Requests.UpdateStatusGuardedTx(ctx, tx, id, fromStatus, toStatus, responseText, now)
		if err != nil {
			return err
		}
		if credit != nil {
			credit.SessionID = req.SessionID
			credit.ParticipantID = req.SubmitterID
			if err := s.Ledger.AppendTx(ctx, tx, credit); err != nil {
				return err
			}
		}
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PendingRequests returns every PENDING request of a session.
func (s *Store) PendingRequests(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	return s.Requests.ListPending(ctx, sessionID)
}

// PendingServable returns the host's FIFO serve queue.
func (s *Store) PendingServable(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	return s.Requests.ListPendingServable(ctx, sessionID)
}

// PendingByRoom resolves the room's active session and returns its pending
// requests.  Used by the degraded-mode poller.
func (s *Store) PendingByRoom(ctx context.Context, roomID uint64) ([]model.Request, error) {
	sess, err := s.Sessions.ActiveByRoom(ctx, roomID)
	if err != nil || sess == nil {
		return nil, err
	}
	return s.Requests.ListPending(ctx, sess.ID)
}

// PlaceSlot consumes the session's armed double flag, stamps it onto the
// slot, and replaces any previous slot of the session, atomically.  It
// returns whether the amplifier applied.
func (s *Store) PlaceSlot(ctx context.Context, slot *model.ServeSlot) (bool, error) {
	var doubled bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		took, err := s.Sessions.TakeDoubleTx(ctx, tx, slot.SessionID)
		if err != nil {
			return err
		}
		slot.Doubled = took
		doubled = took
		return s.Slots.PutTx(ctx, tx, slot)
	})
	if err != nil {
		return false, err
	}
	return doubled, nil
}

// Slot returns the session's serve slot or nil.
func (s *Store) Slot(ctx context.Context, sessionID uint64) (*model.ServeSlot, error) {
	return s.Slots.Get(ctx, sessionID)
}

// ClearSlot drops the session's serve slot without touching any request.
func (s *Store) ClearSlot(ctx context.Context, sessionID uint64) error {
	return s.Slots.Clear(ctx, sessionID)
}
