package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/strangersmeet/internal/realtime"
	"go.uber.org/zap"
)

// RealtimeHandler upgrades GET /v1/ws/:channel_id?token=<jwt> to a
// WebSocket and runs the channel session on it.
//
// The token travels in the query string because browsers cannot set
// headers on a WebSocket handshake. Authentication happens inside the
// session, after the upgrade, so failures reach the client as close codes.
type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	socket   realtime.SocketConfig
	// base outlives individual requests; cancelling it ends every session.
	base   context.Context
	logger *zap.Logger
}

func NewRealtimeHandler(
	base context.Context,
	hub *realtime.Hub,
	socket realtime.SocketConfig,
	allowedOrigins []string,
	logger *zap.Logger,
) *RealtimeHandler {
	origins := newOriginPolicy(allowedOrigins, logger)
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		socket: socket,
		base:   base,
		logger: logger,
	}
}

// Connect handles GET /v1/ws/:channel_id
func (h *RealtimeHandler) Connect(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	socket := realtime.NewWSSocket(ws, h.socket, h.logger)
	session := h.hub.NewSession(socket, c.Param("channel_id"), c.Query("token"))
	_ = session.Run(h.base)
}
