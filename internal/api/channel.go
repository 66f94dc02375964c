package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/middleware"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/lalith-99/strangersmeet/internal/realtime"
	"go.uber.org/zap"
)

// ChannelAuthorizer is the membership check shared by the channel and
// message handlers.
type ChannelAuthorizer interface {
	// AuthorizeChannel fails with apperr.ErrNotFound or apperr.ErrForbidden.
	AuthorizeChannel(ctx context.Context, userID, channelID uuid.UUID) (*models.Channel, error)
	GroupOwner(ctx context.Context, channelID uuid.UUID) (uuid.UUID, error)
}

type ChannelHandler struct {
	channels ChannelAuthorizer
	registry *realtime.Registry
	logger   *zap.Logger
}

func NewChannelHandler(channels ChannelAuthorizer, registry *realtime.Registry, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, registry: registry, logger: logger}
}

// GetByID handles GET /v1/channels/:id
func (h *ChannelHandler) GetByID(c *gin.Context) {
	channelID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ch, err := h.channels.AuthorizeChannel(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		respondError(c, h.logger, err, "failed to get channel")
		return
	}
	c.JSON(http.StatusOK, ch)
}

type channelStatus struct {
	ChannelID      uuid.UUID   `json:"channel_id"`
	Count          int         `json:"count"`
	ConnectedUsers []uuid.UUID `json:"connected_users"`
}

// Status handles GET /v1/channels/:id/status
//
// connected_users lists one entry per live connection, so a user with two
// tabs open appears twice and count is the number of connections.
func (h *ChannelHandler) Status(c *gin.Context) {
	channelID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if _, err := h.channels.AuthorizeChannel(c.Request.Context(), middleware.GetUserID(c), channelID); err != nil {
		respondError(c, h.logger, err, "failed to get channel status")
		return
	}

	users := h.registry.ConnectedUsers(channelID.String())
	if users == nil {
		users = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, channelStatus{
		ChannelID:      channelID,
		Count:          len(users),
		ConnectedUsers: users,
	})
}
