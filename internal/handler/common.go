// Package handler defines the HTTP handlers.  Handlers only translate
// between the wire and the service layer: parsing, auth context, status
// mapping.  All domain rules live in the ledger, serve and payment packages.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/payment"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/serve"
)

// getUserID extracts the user_id placed in context by the JWT middleware.
// JWT numeric claims decode as float64, so several shapes are accepted.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// paramID parses a numeric path parameter.
func paramID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// domainError maps service-layer sentinel errors onto HTTP responses.  It
// returns true when it handled the error.  ErrAlreadyTerminal is absent on
// purpose: callers that can answer with the settled row treat it as
// success, not as an error.
func domainError(c echo.Context, err error) (bool, error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return true, c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrRequestNotFound):
		return true, c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
	case errors.Is(err, repository.ErrForbidden):
		return true, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrRoomBusy):
		return true, c.JSON(http.StatusConflict, echo.Map{"error": "room busy"})
	case errors.Is(err, ledger.ErrSessionNotActive):
		return true, c.JSON(http.StatusConflict, echo.Map{"error": "session not active"})
	case errors.Is(err, ledger.ErrUnlockRequired):
		return true, c.JSON(http.StatusPaymentRequired, echo.Map{"error": "session unlock required"})
	case errors.Is(err, ledger.ErrUnknownTier):
		return true, c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tier"})
	case errors.Is(err, ledger.ErrInvalidTransition):
		return true, c.JSON(http.StatusConflict, echo.Map{"error": "invalid transition"})
	case errors.Is(err, payment.ErrPaymentDeclined):
		return true, c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment declined"})
	case errors.Is(err, serve.ErrNotPending):
		return true, c.JSON(http.StatusConflict, echo.Map{"error": "request not pending"})
	case errors.Is(err, serve.ErrNotServable):
		return true, c.JSON(http.StatusBadRequest, echo.Map{"error": "request kind not servable"})
	}
	return false, nil
}
