package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/models"
)

// Every method takes ctx first: a cancelled request or a closing session
// cancels the query with it.
//
// Lookups return nil, nil when the row does not exist. Callers translate
// that into apperr.ErrNotFound where it matters.

// ChannelRepository reads channels. Channels are created by the group
// management API, which lives outside this service.
type ChannelRepository interface {
	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)
}

// GroupRepository reads groups.
type GroupRepository interface {
	GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error)
}

// MembershipRepository answers who belongs to which group.
type MembershipRepository interface {
	// IsMember is on the hot path: every socket connect and REST message call.
	IsMember(ctx context.Context, groupID uuid.UUID, userID uuid.UUID) (bool, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create persists a message and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, channelID uuid.UUID, authorID uuid.UUID, content string) (*models.Message, error)

	GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)

	// Update replaces the content and stamps UpdatedAt. Returns nil, nil if
	// the message no longer exists.
	Update(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error)

	// Delete is idempotent.
	Delete(ctx context.Context, messageID uuid.UUID) error

	// ListByChannel returns messages oldest first, skipping the newest `skip`.
	ListByChannel(ctx context.Context, channelID uuid.UUID, skip, limit int) ([]models.Message, error)
}

// UserRepository handles user data.
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}
