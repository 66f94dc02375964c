package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/strangersmeet/internal/middleware"
	"github.com/lalith-99/strangersmeet/internal/realtime"
	"go.uber.org/zap"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handlers struct {
	Channels *ChannelHandler
	Messages *MessageHandler
	Users    *UserHandler
	Realtime *RealtimeHandler
}

// NewRouter registers every route. /v1/health and the socket endpoint are
// public at the HTTP layer; the socket authenticates inside its session.
// db may be nil, in which case health only reports the connection counts.
func NewRouter(h Handlers, resolver middleware.IdentityResolver, registry *realtime.Registry, db HealthChecker, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/v1/health", func(c *gin.Context) {
		channels, connections := registry.Stats()
		if db != nil {
			if err := db.Health(c.Request.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"channels":    channels,
			"connections": connections,
		})
	})
	r.GET("/v1/ws/:channel_id", h.Realtime.Connect)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(resolver, logger))

	v1.GET("/users/me", h.Users.GetMe)

	v1.GET("/channels/:id", h.Channels.GetByID)
	v1.GET("/channels/:id/status", h.Channels.Status)
	v1.GET("/channels/:id/messages", h.Messages.List)
	v1.POST("/channels/:id/messages", h.Messages.Create)

	v1.PUT("/messages/:id", h.Messages.Update)
	v1.DELETE("/messages/:id", h.Messages.Delete)

	return r
}
