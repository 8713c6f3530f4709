// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/live-room-interactions/internal/config"
	"github.com/iliyamo/live-room-interactions/internal/handler"
	"github.com/iliyamo/live-room-interactions/internal/middleware"
)

// Handlers bundles everything the router wires up.
type Handlers struct {
	Auth        *handler.AuthHandler
	Session     *handler.SessionHandler
	Serve       *handler.ServeHandler
	Participant *handler.ParticipantHandler
	WS          *handler.WSHandler
}

// Register mounts all routes.  Host-only operations sit behind the HOST
// role; everything that both roles read (state, pending, stats) only needs
// a valid token.  The websocket route authenticates in its handler because
// browser clients cannot set an Authorization header on the upgrade.
func Register(e *echo.Echo, cfg config.Config, h Handlers, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	// Auth.
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/refresh-access", h.Auth.RefreshAccess)
	auth.POST("/logout", h.Auth.Logout)

	// Websocket fan-out, self-authenticating.
	e.GET("/v1/rooms/:room_id/ws", h.WS.Connect)

	// Everything below requires a valid access token.
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(cfg.JWTSecret))
	v1.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	v1.GET("/me", h.Auth.Me)

	// Shared reads.
	v1.GET("/sessions/:id/state", h.Participant.State)
	v1.GET("/sessions/:id/requests/pending", h.Participant.Pending)
	v1.GET("/sessions/:id/stats", h.Participant.Stats,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	// Participant writes.
	part := v1.Group("")
	part.Use(middleware.RequireRole("PARTICIPANT", "HOST"))
	part.POST("/sessions/:id/unlock", h.Participant.Unlock)
	part.POST("/sessions/:id/requests", h.Participant.Submit)

	// Host controls.
	host := v1.Group("")
	host.Use(middleware.RequireRole("HOST"))
	host.POST("/rooms/:room_id/sessions", h.Session.Start)
	host.PATCH("/sessions/:id", h.Session.Update)
	host.POST("/sessions/:id/end", h.Session.End)
	host.GET("/sessions/:id/queue", h.Serve.Queue)
	host.POST("/sessions/:id/serve", h.Serve.ServeRequest)
	host.POST("/sessions/:id/slot/clear", h.Serve.ClearSlot)
	host.POST("/sessions/:id/double", h.Serve.Double)
	host.POST("/sessions/:id/replay", h.Serve.Replay)
	host.POST("/requests/:id/transition", h.Serve.Transition)
}
