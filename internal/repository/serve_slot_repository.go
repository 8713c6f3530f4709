package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// ServeSlotRepo mirrors the ephemeral serve slot into the durable store so
// late-joining observers can reconstruct the countdown.  session_id is the
// primary key, which is what makes the "at most one slot per session"
// invariant a property of the schema rather than of careful callers:
// REPLACE INTO atomically displaces any previous slot.
type ServeSlotRepo struct {
	db *sql.DB
}

// NewServeSlotRepo returns a new ServeSlotRepo bound to the given database.
func NewServeSlotRepo(db *sql.DB) *ServeSlotRepo { return &ServeSlotRepo{db: db} }

// PutTx writes the slot inside an existing transaction, replacing any
// previous slot of the session.
func (r *ServeSlotRepo) PutTx(ctx context.Context, tx *sql.Tx, slot *model.ServeSlot) error {
	_, err := tx.ExecContext(ctx,
		`REPLACE INTO serve_slots (session_id, request_id, started_at, doubled, duration_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		slot.SessionID, slot.RequestID, slot.StartedAt.UTC(), slot.Doubled, slot.DurationSeconds)
	return err
}

// Get returns the session's slot, or nil when nothing is being served.
func (r *ServeSlotRepo) Get(ctx context.Context, sessionID uint64) (*model.ServeSlot, error) {
	var slot model.ServeSlot
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, request_id, started_at, doubled, duration_seconds
		   FROM serve_slots WHERE session_id = ?`,
		sessionID).Scan(&slot.SessionID, &slot.RequestID, &slot.StartedAt, &slot.Doubled, &slot.DurationSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slot.StartedAt = slot.StartedAt.UTC()
	return &slot, nil
}

// Clear drops the slot.  The underlying request keeps whatever status the
// host last set; clearing is purely a presentation action.
func (r *ServeSlotRepo) Clear(ctx context.Context, sessionID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM serve_slots WHERE session_id = ?`, sessionID)
	return err
}

// ClearTx is Clear inside an existing transaction, used by the session end
// cascade.
func (r *ServeSlotRepo) ClearTx(ctx context.Context, tx *sql.Tx, sessionID uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM serve_slots WHERE session_id = ?`, sessionID)
	return err
}
