package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/live-room-interactions/internal/model"
)

// RequestRepo provides CRUD operations for requests.  The request kind is
// stored as a (discriminator, JSON payload) pair and rebuilt into the
// tagged union on scan.  Status writes are guarded compare-and-set
// updates: a writer must name the status it believes the row is in, which
// is what keeps concurrent hosts and duplicate deliveries monotonic.
type RequestRepo struct {
	db *sql.DB
}

// NewRequestRepo returns a new RequestRepo bound to the given database.
func NewRequestRepo(db *sql.DB) *RequestRepo { return &RequestRepo{db: db} }

// DB exposes the underlying handle for cross-repository transactions.
func (r *RequestRepo) DB() *sql.DB { return r.db }

const requestColumns = `id, session_id, submitter_id, submitter_name, kind, payload,
       amount_cents, status, command_id, response_text, payment_ref, created_at, terminal_at`

// scanRequest reads one requests row from the given scanner.
func scanRequest(row interface {
	Scan(dest ...interface{}) error
}) (*model.Request, error) {
	var (
		req          model.Request
		kindName     string
		payload      []byte
		responseText sql.NullString
		paymentRef   sql.NullString
		terminalAt   sql.NullTime
	)
	err := row.Scan(&req.ID, &req.SessionID, &req.SubmitterID, &req.SubmitterName,
		&kindName, &payload, &req.AmountCents, &req.Status, &req.CommandID,
		&responseText, &paymentRef, &req.CreatedAt, &terminalAt)
	if err != nil {
		return nil, err
	}
	kind, err := model.UnmarshalKind(kindName, payload)
	if err != nil {
		return nil, err
	}
	req.Kind = kind
	if responseText.Valid {
		v := responseText.String
		req.ResponseText = &v
	}
	if paymentRef.Valid {
		v := paymentRef.String
		req.PaymentRef = &v
	}
	if terminalAt.Valid {
		t := terminalAt.Time.UTC()
		req.TerminalAt = &t
	}
	return &req, nil
}

// CreateTx inserts a new request within an existing transaction and
// populates the generated ID and timestamps on the provided model.  The
// amount is written exactly once here and never updated afterwards.
func (r *RequestRepo) CreateTx(ctx context.Context, tx *sql.Tx, req *model.Request) error {
	kindName, payload, err := model.MarshalKind(req.Kind)
	if err != nil {
		return err
	}
	var terminalAt interface{}
	if req.TerminalAt != nil {
		terminalAt = req.TerminalAt.UTC()
	}
	const q = `INSERT INTO requests
	           (session_id, submitter_id, submitter_name, kind, payload, amount_cents,
	            status, command_id, payment_ref, terminal_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, req.SessionID, req.SubmitterID, req.SubmitterName,
		kindName, payload, req.AmountCents, req.Status, req.CommandID, req.PaymentRef, terminalAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = uint64(id)
	created, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, req.ID))
	if err != nil {
		return err
	}
	*req = *created
	return nil
}

// GetByID returns one request or ErrRequestNotFound.
func (r *RequestRepo) GetByID(ctx context.Context, id uint64) (*model.Request, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	return req, err
}

// UpdateStatusGuarded moves a request from fromStatus to toStatus.  The
// write succeeds only when the row is still in fromStatus; otherwise
// ErrStaleStatus is returned and the caller re-reads the row to decide
// whether the race was benign.  responseText, when non-nil, is stored
// alongside the transition; terminal transitions stamp terminal_at.
func (r *RequestRepo) UpdateStatusGuarded(ctx context.Context, id uint64, fromStatus, toStatus string, responseText *string, now time.Time) (*model.Request, error) {
	return r.updateStatusGuarded(ctx, r.db, id, fromStatus, toStatus, responseText, now)
}

// UpdateStatusGuardedTx is UpdateStatusGuarded inside an existing
// transaction, so a transition and the ledger credit it earns commit
// atomically.
func (r *RequestRepo) UpdateStatusGuardedTx(ctx context.Context, tx *sql.Tx, id uint64, fromStatus, toStatus string, responseText *string, now time.Time) (*model.Request, error) {
	return r.updateStatusGuarded(ctx, tx, id, fromStatus, toStatus, responseText, now)
}

func (r *RequestRepo) updateStatusGuarded(ctx context.Context, ex dbtx, id uint64, fromStatus, toStatus string, responseText *string, now time.Time) (*model.Request, error) {
	var terminalAt interface{}
	if model.TerminalStatus(toStatus) {
		terminalAt = now.UTC()
	}
	result, err := ex.ExecContext(ctx,
		`UPDATE requests
		    SET status = ?, response_text = COALESCE(?, response_text),
		        terminal_at = COALESCE(?, terminal_at)
		  WHERE id = ? AND status = ?`,
		toStatus, responseText, terminalAt, id, fromStatus)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrStaleStatus
	}
	req, err := scanRequest(ex.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	return req, err
}

// ListPending returns every PENDING request of a session ordered by
// creation.  This is the one-shot reconciliation pull a (re)connecting
// client merges into its working queue by request id.
func (r *RequestRepo) ListPending(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	return r.list(ctx,
		`SELECT `+requestColumns+` FROM requests
		  WHERE session_id = ? AND status = ?
		  ORDER BY created_at, id`,
		sessionID, model.StatusPending)
}

// ListPendingServable returns the host's serve queue: PENDING requests of
// the servable kinds in strict creation order.  Tips and votes never
// appear here.
func (r *RequestRepo) ListPendingServable(ctx context.Context, sessionID uint64) ([]model.Request, error) {
	return r.list(ctx,
		`SELECT `+requestColumns+` FROM requests
		  WHERE session_id = ? AND status = ? AND kind IN (?, ?)
		  ORDER BY created_at, id`,
		sessionID, model.StatusPending, model.KindTier, model.KindCustom)
}

func (r *RequestRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireLiveTx force-terminates every non-terminal request of a session
// within a transaction and returns the affected ids so the caller can emit
// change-feed events for each.  Used by the session end cascade.  The
// terminal_at guard keeps settled tips and votes out: they sit in ACCEPTED
// with terminal_at already stamped and must survive the session end.
func (r *RequestRepo) ExpireLiveTx(ctx context.Context, tx *sql.Tx, sessionID uint64, now time.Time) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM requests
		  WHERE session_id = ? AND status IN (?, ?, ?) AND terminal_at IS NULL
		    FOR UPDATE`,
		sessionID, model.StatusPending, model.StatusServed, model.StatusAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE requests SET status = ?, terminal_at = ?
		  WHERE session_id = ? AND status IN (?, ?, ?) AND terminal_at IS NULL`,
		model.StatusExpired, now.UTC(),
		sessionID, model.StatusPending, model.StatusServed, model.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
