package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/model"
	"github.com/iliyamo/live-room-interactions/internal/reveal"
	"github.com/iliyamo/live-room-interactions/internal/serve"
)

// ServeHandler exposes the host-facing serve queue and request moderation.
type ServeHandler struct {
	Serve  *serve.Controller
	Ledger *ledger.Service
}

func NewServeHandler(s *serve.Controller, l *ledger.Service) *ServeHandler {
	return &ServeHandler{Serve: s, Ledger: l}
}

// Queue returns the FIFO list of PENDING servable requests.
func (h *ServeHandler) Queue(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	reqs, err := h.Serve.Queue(c.Request().Context(), hostID, sessionID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load queue failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"queue": renderRequests(reqs)})
}

type serveReq struct {
	RequestID uint64 `json:"request_id"`
}

// ServeRequest places a pending request into the session's single serve
// slot and starts the countdown.
func (h *ServeHandler) ServeRequest(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req serveReq
	if err := c.Bind(&req); err != nil || req.RequestID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "request_id required"})
	}

	slot, err := h.Serve.Serve(c.Request().Context(), hostID, sessionID, req.RequestID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "serve failed"})
	}
	return c.JSON(http.StatusOK, renderSlot(slot, time.Now().UTC()))
}

// ClearSlot drops the serve slot without touching the request's status.
func (h *ServeHandler) ClearSlot(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	if err := h.Serve.Clear(c.Request().Context(), hostID, sessionID); err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "clear failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

type doubleReq struct {
	Armed bool `json:"armed"`
}

// Double arms or disarms the session's double amplifier for the next serve.
func (h *ServeHandler) Double(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req doubleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Serve.ArmDouble(c.Request().Context(), hostID, sessionID, req.Armed); err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "arm double failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"armed": req.Armed})
}

type replayReq struct {
	Seconds uint32 `json:"seconds"`
}

// Replay opens a time-boxed replay window on the session.
func (h *ServeHandler) Replay(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req replayReq
	if err := c.Bind(&req); err != nil || req.Seconds == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seconds required"})
	}
	until, err := h.Serve.OpenReplay(c.Request().Context(), hostID, sessionID, time.Duration(req.Seconds)*time.Second)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "open replay failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"replay_until": until})
}

type transitionReq struct {
	Status       string  `json:"status"`
	ResponseText *string `json:"response_text,omitempty"`
}

// allowed host-driven target statuses; SERVED only happens via serve and
// EXPIRED only via session end.
var hostTargets = map[string]bool{
	model.StatusAccepted: true,
	model.StatusAnswered: true,
	model.StatusDeclined: true,
}

// Transition moves a request along its state machine (accept, answer,
// decline).  A request that already settled terminally answers 200 with the
// stored row: duplicate moderation taps are expected, not errors.
func (h *ServeHandler) Transition(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	requestID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}
	var req transitionReq
	if err := c.Bind(&req); err != nil || !hostTargets[req.Status] {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be ACCEPTED, ANSWERED or DECLINED"})
	}

	ctx := c.Request().Context()
	stored, err := h.Ledger.Request(ctx, requestID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load request failed"})
	}
	sess, err := h.Ledger.Session(ctx, stored.SessionID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	if sess.HostID != hostID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	updated, err := h.Ledger.Transition(ctx, requestID, req.Status, req.ResponseText)
	if errors.Is(err, ledger.ErrAlreadyTerminal) {
		return c.JSON(http.StatusOK, renderRequest(updated))
	}
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transition failed"})
	}
	return c.JSON(http.StatusOK, renderRequest(updated))
}

// renderSlot fills the slot view, deriving remaining time from the absolute
// start so reconnecting clients see the same countdown as everyone else.
func renderSlot(slot *model.ServeSlot, now time.Time) slotView {
	dur := time.Duration(slot.DurationSeconds) * time.Second
	remaining := reveal.Remaining(slot.StartedAt, dur, now)
	return slotView{
		RequestID:        slot.RequestID,
		StartedAt:        slot.StartedAt,
		DurationSeconds:  slot.DurationSeconds,
		RemainingSeconds: remaining.Seconds(),
		Doubled:          slot.Doubled,
		Revealed:         remaining == 0,
	}
}
