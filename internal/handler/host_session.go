package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/model"
)

// SessionHandler exposes the host-facing session lifecycle.
type SessionHandler struct {
	Ledger *ledger.Service
}

func NewSessionHandler(l *ledger.Service) *SessionHandler {
	return &SessionHandler{Ledger: l}
}

type startSessionReq struct {
	Tiers            []model.PriceTier `json:"tiers"`
	Private          bool              `json:"private"`
	UnlockPriceCents uint32            `json:"unlock_price_cents"`
	// Resume returns the host's already-active session in the room instead
	// of starting a fresh one.
	Resume bool `json:"resume"`
}

// Start activates a session in a room.  Starting while the host has another
// ACTIVE session force-ends that one first.
func (h *SessionHandler) Start(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, err := paramID(c, "room_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	var req startSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Private && req.UnlockPriceCents == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "private session requires unlock_price_cents"})
	}

	sess, err := h.Ledger.StartSession(c.Request().Context(), ledger.StartInput{
		RoomID:           roomID,
		HostID:           hostID,
		Tiers:            req.Tiers,
		Private:          req.Private,
		UnlockPriceCents: req.UnlockPriceCents,
		Resume:           req.Resume,
	})
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "start session failed"})
	}
	return c.JSON(http.StatusCreated, renderSession(sess))
}

type updateSessionReq struct {
	Tiers            []model.PriceTier `json:"tiers"`
	Private          bool              `json:"private"`
	UnlockPriceCents uint32            `json:"unlock_price_cents"`
}

// Update replaces the pricing menu, privacy flag and unlock price.  Amounts
// of already-created requests are unaffected; they were fixed at submission.
func (h *SessionHandler) Update(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req updateSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	sess, err := h.Ledger.UpdateConfig(c.Request().Context(), hostID, sessionID, req.Tiers, req.Private, req.UnlockPriceCents)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update session failed"})
	}
	return c.JSON(http.StatusOK, renderSession(sess))
}

// End terminates the session.  Live requests expire, the serve slot clears,
// entitlements are kept.  Ending twice is a no-op.
func (h *SessionHandler) End(c echo.Context) error {
	hostID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	sess, err := h.Ledger.EndSession(c.Request().Context(), hostID, sessionID)
	if err != nil {
		if handled, herr := domainError(c, err); handled {
			return herr
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "end session failed"})
	}
	return c.JSON(http.StatusOK, renderSession(sess))
}
