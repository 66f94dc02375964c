package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/middleware"
	"github.com/lalith-99/strangersmeet/internal/realtime"
	"github.com/lalith-99/strangersmeet/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageHandler is the request/response path for messages. Every write is
// persisted first and then pushed to the channel's live connections.
type MessageHandler struct {
	repo        repository.MessageRepository
	channels    ChannelAuthorizer
	broadcaster *realtime.Broadcaster
	maxLength   int
	logger      *zap.Logger
}

func NewMessageHandler(
	repo repository.MessageRepository,
	channels ChannelAuthorizer,
	broadcaster *realtime.Broadcaster,
	maxLength int,
	logger *zap.Logger,
) *MessageHandler {
	return &MessageHandler{
		repo:        repo,
		channels:    channels,
		broadcaster: broadcaster,
		maxLength:   maxLength,
		logger:      logger,
	}
}

type messageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *MessageHandler) bindContent(c *gin.Context) (string, bool) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be blank"})
		return "", false
	}
	if h.maxLength > 0 && utf8.RuneCountInString(req.Content) > h.maxLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("content exceeds %d characters", h.maxLength)})
		return "", false
	}
	return req.Content, true
}

// Create handles POST /v1/channels/:id/messages
//
// Messages posted here reach every live connection on the channel,
// including the author's own sockets.
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	content, ok := h.bindContent(c)
	if !ok {
		return
	}
	user := middleware.GetUser(c)
	ctx := c.Request.Context()

	if _, err := h.channels.AuthorizeChannel(ctx, user.ID, channelID); err != nil {
		respondError(c, h.logger, err, "failed to create message")
		return
	}

	msg, err := h.repo.Create(ctx, channelID, user.ID, content)
	if err != nil {
		h.logger.Error("failed to create message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}

	author := realtime.UserInfo{ID: user.ID, Username: user.Username}
	h.broadcast(msg.ChannelID, realtime.NewMessageFrom(msg, author))
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/channels/:id/messages?skip=0&limit=50
//
// Pages count back from the newest message: skip=0 is the latest page.
// Each page is returned oldest first. limit defaults to 50, capped at 100.
func (h *MessageHandler) List(c *gin.Context) {
	channelID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	skip, err := queryInt(c, "skip", 0)
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'skip' parameter"})
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
		return
	}
	limit = min(limit, maxPageSize)

	ctx := c.Request.Context()
	if _, err := h.channels.AuthorizeChannel(ctx, middleware.GetUserID(c), channelID); err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}

	messages, err := h.repo.ListByChannel(ctx, channelID, skip, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Update handles PUT /v1/messages/:id. Only the author may edit.
func (h *MessageHandler) Update(c *gin.Context) {
	messageID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	content, ok := h.bindContent(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	msg, err := h.repo.GetByID(ctx, messageID)
	if err != nil {
		h.logger.Error("failed to get message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update message"})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if msg.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the author can edit a message"})
		return
	}

	updated, err := h.repo.Update(ctx, messageID, content)
	if err != nil {
		h.logger.Error("failed to update message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update message"})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	h.broadcast(updated.ChannelID, realtime.MessageUpdate{
		ID:        updated.ID,
		Content:   updated.Content,
		UpdatedAt: updated.UpdatedAt,
	})
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /v1/messages/:id. The author or the owner of the
// channel's group may delete.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	msg, err := h.repo.GetByID(ctx, messageID)
	if err != nil {
		h.logger.Error("failed to get message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	if msg.AuthorID != userID {
		owner, err := h.channels.GroupOwner(ctx, msg.ChannelID)
		if err != nil {
			respondError(c, h.logger, err, "failed to delete message")
			return
		}
		if owner != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author or the group owner can delete a message"})
			return
		}
	}

	if err := h.repo.Delete(ctx, messageID); err != nil {
		h.logger.Error("failed to delete message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}

	h.broadcast(msg.ChannelID, realtime.MessageDelete{ID: msg.ID})
	c.JSON(http.StatusOK, msg)
}

// broadcast runs after the write has committed, so a failure here is
// logged and the request still succeeds.
func (h *MessageHandler) broadcast(channelID uuid.UUID, env realtime.Envelope) {
	if err := h.broadcaster.Broadcast(channelID.String(), env, uuid.Nil); err != nil {
		h.logger.Error("broadcast failed",
			zap.Stringer("channel_id", channelID),
			zap.String("type", env.Type()),
			zap.Error(err),
		)
	}
}

func queryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(raw)
}
