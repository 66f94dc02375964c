package realtime

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/samber/lo"
)

// Socket is the transport under a Connection.
//
// Send only enqueues: it returns at once, with an error wrapping
// apperr.ErrTransportFailure when the outbound queue is full or the socket
// is closed. Close is idempotent, never blocks, and makes a blocked
// ReadMessage return shortly after.
type Socket interface {
	ReadMessage() ([]byte, error)
	Send(payload []byte) error
	Close(code int, reason string)
}

// Connection is one live client connection on one channel.
type Connection struct {
	id        uuid.UUID
	user      UserInfo
	channelID string
	socket    Socket
}

func NewConnection(user UserInfo, channelID string, socket Socket) *Connection {
	return &Connection{
		id:        uuid.New(),
		user:      user,
		channelID: channelID,
		socket:    socket,
	}
}

func (c *Connection) ID() uuid.UUID      { return c.id }
func (c *Connection) UserID() uuid.UUID  { return c.user.ID }
func (c *Connection) User() UserInfo     { return c.user }
func (c *Connection) ChannelID() string  { return c.channelID }
func (c *Connection) Send(b []byte) error { return c.socket.Send(b) }

func (c *Connection) Close(code int, reason string) {
	c.socket.Close(code, reason)
}

// Registry maps each channel to the connections currently on it.
// A channel with no connections has no entry, and a connection is on at
// most one channel.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[*Connection]uuid.UUID
	joined   map[*Connection]string
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[*Connection]uuid.UUID),
		joined:   make(map[*Connection]string),
	}
}

// Register adds conn, owned by userID, to channelID. A connection already on
// another channel is moved.
func (r *Registry) Register(channelID string, conn *Connection, userID uuid.UUID) error {
	return r.register(channelID, conn, userID, nil)
}

// register runs joined, when set, under the write lock after conn is added.
// A broadcast cannot reach conn before joined has run.
func (r *Registry) register(channelID string, conn *Connection, userID uuid.UUID, joined func(users []uuid.UUID)) error {
	if channelID == "" {
		return fmt.Errorf("register: empty channel id: %w", apperr.ErrInvalidArgument)
	}
	if conn == nil {
		return fmt.Errorf("register: nil connection: %w", apperr.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.joined[conn]; ok && prev != channelID {
		r.removeLocked(prev, conn)
	}

	set, ok := r.channels[channelID]
	if !ok {
		set = make(map[*Connection]uuid.UUID)
		r.channels[channelID] = set
	}
	set[conn] = userID
	r.joined[conn] = channelID

	if joined != nil {
		joined(lo.Values(set))
	}
	return nil
}

// Unregister removes conn from channelID. Unknown connections, channels
// and owners are ignored, so repeated calls are harmless.
func (r *Registry) Unregister(channelID string, conn *Connection, userID uuid.UUID) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.channels[channelID][conn]; !ok || owner != userID {
		return
	}
	r.removeLocked(channelID, conn)
}

// prune drops conn after a failed send. It reports whether conn was still
// registered, so only one caller goes on to close it.
func (r *Registry) prune(channelID string, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(channelID, conn)
}

func (r *Registry) removeLocked(channelID string, conn *Connection) bool {
	set, ok := r.channels[channelID]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	delete(r.joined, conn)
	if len(set) == 0 {
		delete(r.channels, channelID)
	}
	return true
}

// ConnectedUsers returns the owner of every connection on channelID. A user
// with several connections appears several times. Order is unspecified.
func (r *Registry) ConnectedUsers(channelID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.channels[channelID])
}

func (r *Registry) snapshot(channelID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.channels[channelID])
}

// Stats reports how many channels have connections and how many
// connections there are in total.
func (r *Registry) Stats() (channels, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels), len(r.joined)
}

// CloseAll closes every registered connection. The sessions that own them
// unregister on their way out.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	conns := lo.Keys(r.joined)
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Close(code, reason)
	}
}
