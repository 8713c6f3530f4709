package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// SessionRepo provides CRUD operations for sessions.  A session row carries
// the pricing menu as a JSON column plus the host-side toggles (double
// amplifier, replay window).  All timestamp fields are stored in UTC.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span several repositories.
func (r *SessionRepo) DB() *sql.DB { return r.db }

const sessionColumns = `id, room_id, host_id, state, tiers, private, unlock_price_cents,
       double_armed, replay_until, created_at, ended_at`

// scanSession reads one sessions row from the given scanner.
func scanSession(row interface {
	Scan(dest ...interface{}) error
}) (*model.Session, error) {
	var (
		s           model.Session
		tiersRaw    []byte
		replayUntil sql.NullTime
		endedAt     sql.NullTime
	)
	err := row.Scan(&s.ID, &s.RoomID, &s.HostID, &s.State, &tiersRaw, &s.Private,
		&s.UnlockPriceCents, &s.DoubleArmed, &replayUntil, &s.CreatedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	tiers, err := model.UnmarshalTiers(tiersRaw)
	if err != nil {
		return nil, err
	}
	s.Tiers = tiers
	if replayUntil.Valid {
		t := replayUntil.Time.UTC()
		s.ReplayUntil = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		s.EndedAt = &t
	}
	return &s, nil
}

// CreateTx inserts a new session within an existing transaction and
// populates the generated ID and timestamps on the provided model.  The
// caller must commit or rollback the transaction.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Session) error {
	tiersRaw, err := model.MarshalTiers(s.Tiers)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions (room_id, host_id, state, tiers, private, unlock_price_cents)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, s.RoomID, s.HostID, s.State, tiersRaw, s.Private, s.UnlockPriceCents)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults.
	created, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, s.ID))
	if err != nil {
		return err
	}
	*s = *created
	return nil
}

// GetByID returns one session or ErrSessionNotFound.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// GetByIDTx is GetByID inside an existing transaction, locking the row so
// lifecycle cascades see a stable state.
func (r *SessionRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ? FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// ActiveByHostTx returns the host's ACTIVE session inside a transaction, or
// nil when the host has none.  At most one row can match thanks to the
// one-active-session-per-host hygiene rule enforced by the ledger.
func (r *SessionRepo) ActiveByHostTx(ctx context.Context, tx *sql.Tx, hostID uint64) (*model.Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE host_id = ? AND state = ? LIMIT 1 FOR UPDATE`,
		hostID, model.SessionActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ActiveByRoomTx returns the room's ACTIVE session inside a transaction,
// or nil when the room is idle.  The row lock serializes two hosts racing
// to start in the same room.
func (r *SessionRepo) ActiveByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) (*model.Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_id = ? AND state = ? LIMIT 1 FOR UPDATE`,
		roomID, model.SessionActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ActiveByRoom returns the ACTIVE session of a room, or nil when the room
// is idle.
func (r *SessionRepo) ActiveByRoom(ctx context.Context, roomID uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_id = ? AND state = ? LIMIT 1`,
		roomID, model.SessionActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// EndTx marks a session ENDED within a transaction.  The state guard keeps
// the write idempotent under duplicate force-end deliveries.
func (r *SessionRepo) EndTx(ctx context.Context, tx *sql.Tx, sessionID uint64, endedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, ended_at = ? WHERE id = ? AND state <> ?`,
		model.SessionEnded, endedAt.UTC(), sessionID, model.SessionEnded)
	return err
}

// UpdateConfig replaces the pricing menu, privacy flag and unlock price of
// a session that has not ended.
func (r *SessionRepo) UpdateConfig(ctx context.Context, sessionID uint64, tiers []model.PriceTier, private bool, unlockPriceCents uint32) error {
	tiersRaw, err := model.MarshalTiers(tiers)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET tiers = ?, private = ?, unlock_price_cents = ? WHERE id = ? AND state <> ?`,
		tiersRaw, private, unlockPriceCents, sessionID, model.SessionEnded)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ArmDouble sets the pending double amplifier flag.
func (r *SessionRepo) ArmDouble(ctx context.Context, sessionID uint64, armed bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET double_armed = ? WHERE id = ?`, armed, sessionID)
	return err
}

// TakeDoubleTx consumes the armed double flag: it reports whether the flag
// was set and clears it in the same statement, so exactly one serve can
// observe a single arming even under concurrent hosts.
func (r *SessionRepo) TakeDoubleTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET double_armed = 0 WHERE id = ? AND double_armed = 1`, sessionID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetReplayUntil opens (or closes, with nil) the replay window.
func (r *SessionRepo) SetReplayUntil(ctx context.Context, sessionID uint64, until *time.Time) error {
	var v interface{}
	if until != nil {
		v = until.UTC()
	}
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET replay_until = ? WHERE id = ?`, v, sessionID)
	return err
}
