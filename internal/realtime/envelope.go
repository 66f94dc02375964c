package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/models"
)

// Wire names of the outbound event types.
const (
	TypeNewMessage            = "new_message"
	TypeMessageSent           = "message_sent"
	TypeMessageUpdate         = "message_update"
	TypeMessageDelete         = "message_delete"
	TypeTyping                = "typing"
	TypeUserConnected         = "user_connected"
	TypeUserDisconnected      = "user_disconnected"
	TypeConnectionEstablished = "connection_established"
	TypeError                 = "error"
)

// Envelope is an outbound event. The set of implementations is closed:
// only the types in this file satisfy it.
//
// Envelopes are values. A broadcast encodes one once and sends the same
// bytes to every recipient.
type Envelope interface {
	Type() string
	envelope()
}

// UserInfo identifies a user on the wire.
type UserInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

func userInfo(u *models.User) UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username}
}

// NewMessage announces a message persisted in a channel.
type NewMessage struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Author    UserInfo  `json:"author"`
	ChannelID uuid.UUID `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessageFrom builds the announcement for msg written by author.
func NewMessageFrom(msg *models.Message, author UserInfo) NewMessage {
	return NewMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		Author:    author,
		ChannelID: msg.ChannelID,
		CreatedAt: msg.CreatedAt,
	}
}

// MessageSent is the author's own copy of a NewMessage. It carries the same
// fields, so clients can reconcile it with their optimistic render.
type MessageSent struct {
	NewMessage
}

type MessageUpdate struct {
	ID        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type MessageDelete struct {
	ID uuid.UUID `json:"id"`
}

type Typing struct {
	User     UserInfo `json:"user"`
	IsTyping bool     `json:"is_typing"`
}

type UserConnected struct {
	User UserInfo `json:"user"`
}

type UserDisconnected struct {
	User UserInfo `json:"user"`
}

// ConnectionEstablished greets a connection that just became Active.
// ConnectedUsers includes the new connection's own user and may repeat a
// user who holds several connections.
type ConnectionEstablished struct {
	User           UserInfo    `json:"user"`
	ChannelID      string      `json:"channel_id"`
	ConnectedUsers []uuid.UUID `json:"connected_users"`
}

// Error reports a problem with one inbound frame to its sender.
type Error struct {
	Message string `json:"message"`
}

func (NewMessage) Type() string            { return TypeNewMessage }
func (MessageSent) Type() string           { return TypeMessageSent }
func (MessageUpdate) Type() string         { return TypeMessageUpdate }
func (MessageDelete) Type() string         { return TypeMessageDelete }
func (Typing) Type() string                { return TypeTyping }
func (UserConnected) Type() string         { return TypeUserConnected }
func (UserDisconnected) Type() string      { return TypeUserDisconnected }
func (ConnectionEstablished) Type() string { return TypeConnectionEstablished }
func (Error) Type() string                 { return TypeError }

func (NewMessage) envelope()            {}
func (MessageSent) envelope()           {}
func (MessageUpdate) envelope()         {}
func (MessageDelete) envelope()         {}
func (Typing) envelope()                {}
func (UserConnected) envelope()         {}
func (UserDisconnected) envelope()      {}
func (ConnectionEstablished) envelope() {}
func (Error) envelope()                 {}

// Encode renders env as a JSON object whose first field is "type".
func Encode(env Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("marshal %s: payload is not an object", env.Type())
	}
	typ, _ := json.Marshal(env.Type())

	out := make([]byte, 0, len(body)+len(typ)+10)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}
