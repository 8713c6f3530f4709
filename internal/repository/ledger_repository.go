package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// LedgerRepo appends and aggregates monetary ledger events.  The table is
// append-only; there are no update or delete paths.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo returns a new LedgerRepo bound to the given database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// Append inserts one ledger event.
func (r *LedgerRepo) Append(ctx context.Context, ev *model.LedgerEvent) error {
	return r.appendWith(ctx, r.db, ev)
}

// AppendTx inserts one ledger event inside an existing transaction so the
// credit commits atomically with the transition that earned it.
func (r *LedgerRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev *model.LedgerEvent) error {
	return r.appendWith(ctx, tx, ev)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *LedgerRepo) appendWith(ctx context.Context, ex execer, ev *model.LedgerEvent) error {
	result, err := ex.ExecContext(ctx,
		`INSERT INTO ledger_events (room_id, session_id, participant_id, category, amount_cents)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.RoomID, ev.SessionID, ev.ParticipantID, ev.Category, ev.AmountCents)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	return nil
}

// CategoryTotal is one row of the per-category aggregate.
type CategoryTotal struct {
	Category   string `json:"category"`
	TotalCents uint64 `json:"total_cents"`
	Count      uint64 `json:"count"`
}

// TotalsBySession aggregates the credited amounts of one session grouped by
// category.  Categories with no events are simply absent.
func (r *LedgerRepo) TotalsBySession(ctx context.Context, sessionID uint64) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, COALESCE(SUM(amount_cents), 0), COUNT(*)
		   FROM ledger_events WHERE session_id = ?
		  GROUP BY category ORDER BY category`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]CategoryTotal, 0)
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.TotalCents, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Spender is the aggregate spend of one participant in a session.
type Spender struct {
	ParticipantID uint64 `json:"participant_id"`
	TotalCents    uint64 `json:"total_cents"`
}

// TopSpender returns the participant with the highest credited total in the
// session, or nil when the session has no ledger events yet.
func (r *LedgerRepo) TopSpender(ctx context.Context, sessionID uint64) (*Spender, error) {
	var s Spender
	err := r.db.QueryRowContext(ctx,
		`SELECT participant_id, COALESCE(SUM(amount_cents), 0) AS total
		   FROM ledger_events WHERE session_id = ?
		  GROUP BY participant_id ORDER BY total DESC, participant_id LIMIT 1`,
		sessionID).Scan(&s.ParticipantID, &s.TotalCents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
