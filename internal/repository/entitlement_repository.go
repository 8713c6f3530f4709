package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// EntitlementRepo persists standing access grants.  The table has a unique
// key on (session_id, participant_id), so Grant is naturally idempotent:
// re-granting inserts nothing and reports that no new row was created.
type EntitlementRepo struct {
	db *sql.DB
}

// NewEntitlementRepo returns a new EntitlementRepo bound to the given database.
func NewEntitlementRepo(db *sql.DB) *EntitlementRepo { return &EntitlementRepo{db: db} }

// Grant records an unlock for (session, participant).  It returns true when
// a new row was created and false when the participant already held access.
func (r *EntitlementRepo) Grant(ctx context.Context, sessionID, participantID uint64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO entitlements (session_id, participant_id) VALUES (?, ?)`,
		sessionID, participantID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Has reports whether the participant holds standing access to the session.
func (r *EntitlementRepo) Has(ctx context.Context, sessionID, participantID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM entitlements WHERE session_id = ? AND participant_id = ? LIMIT 1`,
		sessionID, participantID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the grant row, or nil when the participant has no access.
func (r *EntitlementRepo) Get(ctx context.Context, sessionID, participantID uint64) (*model.Entitlement, error) {
	var e model.Entitlement
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, participant_id, granted_at FROM entitlements
		  WHERE session_id = ? AND participant_id = ?`,
		sessionID, participantID).Scan(&e.SessionID, &e.ParticipantID, &e.GrantedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
