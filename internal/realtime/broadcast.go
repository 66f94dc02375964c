package realtime

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Broadcaster fans envelopes out to the connections of a channel.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast sends env to every connection on channelID except those owned
// by exclude. uuid.Nil excludes nobody.
//
// A connection whose send fails is pruned and closed, and delivery to the
// rest goes on. The only error is apperr.ErrInvalidArgument.
func (b *Broadcaster) Broadcast(channelID string, env Envelope, exclude uuid.UUID) error {
	if channelID == "" {
		return fmt.Errorf("broadcast: empty channel id: %w", apperr.ErrInvalidArgument)
	}
	if env == nil {
		return fmt.Errorf("broadcast: nil envelope: %w", apperr.ErrInvalidArgument)
	}

	targets := lo.Filter(b.registry.snapshot(channelID), func(c *Connection, _ int) bool {
		return exclude == uuid.Nil || c.UserID() != exclude
	})
	if len(targets) == 0 {
		return nil
	}

	payload, err := Encode(env)
	if err != nil {
		return fmt.Errorf("broadcast: %v: %w", err, apperr.ErrInvalidArgument)
	}

	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			b.drop(channelID, conn, err)
		}
	}
	return nil
}

func (b *Broadcaster) drop(channelID string, conn *Connection, cause error) {
	if !b.registry.prune(channelID, conn) {
		return
	}
	b.logger.Warn("dropping connection after failed send",
		zap.String("channel_id", channelID),
		zap.Stringer("connection_id", conn.ID()),
		zap.Stringer("user_id", conn.UserID()),
		zap.Error(cause),
	)
	conn.Close(websocket.CloseTryAgainLater, "slow consumer")
}
