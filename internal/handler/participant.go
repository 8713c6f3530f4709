package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/payment"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/serve"
)

// ParticipantHandler exposes the participant-facing surface: unlocking,
// submitting paid interactions and the reconciliation pulls.
type ParticipantHandler struct {
	Ledger   *ledger.Service
	Serve    *serve.Controller
	Payments *payment.Entitlements
	Store    *repository.Store
}

func NewParticipantHandler(l *ledger.Service, s *serve.Controller, p *payment.Entitlements, store *repository.Store) *ParticipantHandler {
	return &ParticipantHandler{Ledger: l, Serve: s, Payments: p, Store: store}
}

// Unlock buys standing access to a private session.  Re-unlocking answers
// 200 without charging again.
func (h *ParticipantHandler) Unlock(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx := c.Request().Context()
	sess, err := h.Ledger.Session(ctx, sessionID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	if sess.State != model.SessionActive {
		return c.JSON(http.StatusConflict, echo.Map{"error": "session not active"})
	}
	if !sess.Private {
		return c.JSON(http.StatusOK, echo.Map{"unlocked": true, "charged": false})
	}

	charged, err := h.Payments.Unlock(ctx, sess, userID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unlock failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"unlocked": true, "charged": charged})
}

type submitReq struct {
	Kind        string `json:"kind"` // TIER | CUSTOM | TIP | VOTE
	Tier        string `json:"tier,omitempty"`
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Note        string `json:"note,omitempty"`
	Choice      string `json:"choice,omitempty"`
	AmountCents uint32 `json:"amount_cents,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
}

// kindFromSubmit builds the tagged kind from the flat wire shape.
func kindFromSubmit(req submitReq) (model.Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(req.Kind)) {
	case model.KindTier:
		if req.Tier == "" {
			return nil, false
		}
		return model.TierPurchase{Tier: req.Tier}, true
	case model.KindCustom:
		if req.Text == "" {
			return nil, false
		}
		return model.CustomRequest{Type: req.Type, Text: req.Text}, true
	case model.KindTip:
		if req.AmountCents == 0 {
			return nil, false
		}
		return model.Tip{AmountCents: req.AmountCents, Note: req.Note}, true
	case model.KindVote:
		if req.Choice == "" {
			return nil, false
		}
		return model.Vote{Choice: req.Choice}, true
	}
	return nil, false
}

// Submit creates a paid interaction request in the session.  The charge is
// authorized before anything is written; a declined payment writes nothing.
func (h *ParticipantHandler) Submit(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req submitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	kind, ok := kindFromSubmit(req)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid kind or missing payload"})
	}

	ctx := c.Request().Context()
	u, err := h.Store.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	created, err := h.Ledger.Submit(ctx, ledger.SubmitInput{
		SessionID:   sessionID,
		Submitter:   ledger.Submitter{ID: userID, DisplayName: u.DisplayName},
		Kind:        kind,
		AmountCents: req.AmountCents,
		CommandID:   strings.TrimSpace(req.CommandID),
	})
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "submit failed"})
	}
	return c.JSON(http.StatusCreated, renderRequest(created))
}

// Pending is the one-shot reconciliation pull: every PENDING request of the
// session, for merge-by-id on the client.
func (h *ParticipantHandler) Pending(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	reqs, err := h.Ledger.PendingRequests(c.Request().Context(), sessionID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load pending failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"pending": renderRequests(reqs)})
}

// State returns the session plus the live presentation state: the serve
// slot with its derived remaining countdown, and whether a replay window is
// open.  A client reconnecting mid-countdown rebuilds its view from this
// single response.
func (h *ParticipantHandler) State(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx := c.Request().Context()
	sess, err := h.Ledger.Session(ctx, sessionID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}

	now := time.Now().UTC()
	resp := echo.Map{
		"session":     renderSession(sess),
		"replay_open": sess.ReplayUntil != nil && sess.ReplayUntil.After(now),
	}
	slot, err := h.Serve.Slot(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load slot failed"})
	}
	if slot != nil {
		view := renderSlot(slot, now)
		resp["slot"] = view
		if req, err := h.Ledger.Request(ctx, slot.RequestID); err == nil {
			resp["serving"] = renderRequest(req)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Stats aggregates the session's monetary ledger: totals per category and
// the top spender.  Derived entirely from append-only events, so it is safe
// to recompute at any time.
func (h *ParticipantHandler) Stats(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx := c.Request().Context()
	totals, err := h.Store.Ledger.TotalsBySession(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load totals failed"})
	}
	top, err := h.Store.Ledger.TopSpender(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load top spender failed"})
	}
	resp := echo.Map{"totals": totals}
	if top != nil {
		resp["top_spender"] = top
	}
	return c.JSON(http.StatusOK, resp)
}
