package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered person. Identity itself (Google sign-in, phone
// verification) is handled outside this service; we only read users.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is a set of users sharing channels. Membership lives in the
// user_group join table and is granted by redeeming an invitation.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is a named stream of messages inside exactly one group.
type Channel struct {
	ID          uuid.UUID `json:"id"`
	GroupID     uuid.UUID `json:"group_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a single chat message in a channel.
//
// UpdatedAt stays nil until the author edits the message.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	AuthorID  uuid.UUID  `json:"author_id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
