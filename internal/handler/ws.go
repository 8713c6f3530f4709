package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/queue"
	"github.com/iliyamo/live-room-interactions/internal/repository"
)

const (
	wsReadLimit = 4096
	wsPongWait  = 60 * time.Second
)

// WSHandler upgrades clients onto the room fan-out hub.  The socket is
// push-only: both feeds arrive through it, and the client reconciles them
// with its one-shot pull.  Auth happens in the handler instead of the JWT
// middleware because browser websocket clients cannot set headers; the
// token travels in the `token` query parameter (Authorization is still
// honored for non-browser clients).
type WSHandler struct {
	Hub       *fanout.Hub
	Store     *repository.Store
	JWTSecret string
}

func NewWSHandler(hub *fanout.Hub, store *repository.Store, secret string) *WSHandler {
	return &WSHandler{Hub: hub, Store: store, JWTSecret: secret}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement is delegated to the edge proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// authenticate resolves the user id from the query token or bearer header.
func (h *WSHandler) authenticate(c echo.Context) (uint64, bool) {
	raw := c.QueryParam("token")
	if raw == "" {
		auth := c.Request().Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			raw = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if raw == "" {
		return 0, false
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(h.JWTSecret), nil
	})
	if err != nil || !tok.Valid {
		return 0, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	switch sub := claims["sub"].(type) {
	case float64:
		return uint64(sub), true
	case string:
		if n, err := strconv.ParseUint(sub, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Connect upgrades the request and attaches the client to its room.  The
// initial snapshot of pending requests is sent immediately so the client
// starts from a reconciled view instead of an empty one.
func (h *WSHandler) Connect(c echo.Context) error {
	userID, ok := h.authenticate(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, err := paramID(c, "room_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}

	sub := h.Hub.Register(roomID, userID, conn)
	defer h.Hub.Unregister(roomID, sub)

	// Seed: current pending set of the room's active session, rendered in
	// the same row shape the change-feed uses.
	ctx := c.Request().Context()
	if reqs, err := h.Store.PendingByRoom(ctx, roomID); err == nil {
		rows := make([]queue.RequestRow, 0, len(reqs))
		for i := range reqs {
			ev := queue.RequestEvent(queue.OpInsert, roomID, &reqs[i])
			rows = append(rows, *ev.Request)
		}
		h.Hub.SendSnapshot(sub, rows)
	}

	// Read loop exists only to detect disconnects and answer pings; clients
	// never push state through the socket.  The hub's write pump owns all
	// writes, including the keepalive pings this deadline depends on.
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
