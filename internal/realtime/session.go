package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/lalith-99/strangersmeet/internal/models"
	"go.uber.org/zap"
)

//go:generate mockgen -source=session.go -destination=../mocks/realtime_mock.go -package=mocks

// Close codes sent when a connection is refused before it becomes Active.
const (
	CloseInvalidArgument = 4400
	CloseUnauthenticated = 4401
	CloseForbidden       = 4403
	CloseNotFound        = 4404
)

// Authenticator resolves the credential a client presents on connect.
// Unknown or inactive users are apperr.ErrUnauthenticated.
type Authenticator interface {
	ResolveIdentity(ctx context.Context, credential string) (*models.User, error)
}

// MembershipOracle answers which group owns a channel and who belongs to it.
type MembershipOracle interface {
	ResolveChannelGroup(ctx context.Context, channelID string) (uuid.UUID, error)
	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
}

type MessageStore interface {
	Create(ctx context.Context, channelID, authorID uuid.UUID, content string) (*models.Message, error)
}

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthorizing
	StateActive
	StateClosing
	StateClosed
)

var stateNames = [...]string{"connecting", "authenticating", "authorizing", "active", "closing", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Hub holds what every session shares: the registry, the broadcaster and
// the collaborators consulted on connect and on each message.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	auth        Authenticator
	oracle      MembershipOracle
	messages    MessageStore
	logger      *zap.Logger

	maxMessageLength int
}

func NewHub(
	registry *Registry,
	broadcaster *Broadcaster,
	auth Authenticator,
	oracle MembershipOracle,
	messages MessageStore,
	maxMessageLength int,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		registry:         registry,
		broadcaster:      broadcaster,
		auth:             auth,
		oracle:           oracle,
		messages:         messages,
		maxMessageLength: maxMessageLength,
		logger:           logger,
	}
}

// NewSession starts the lifecycle of a freshly accepted socket. channelID
// and credential are what the client put in the connect request.
func (h *Hub) NewSession(socket Socket, channelID, credential string) *Session {
	id := uuid.New()
	s := &Session{
		id:         id,
		hub:        h,
		socket:     socket,
		channelID:  channelID,
		credential: credential,
		logger: h.logger.With(
			zap.Stringer("session_id", id),
			zap.String("channel_id", channelID),
		),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// Session drives one connection from accept to close.
type Session struct {
	id         uuid.UUID
	hub        *Hub
	socket     Socket
	channelID  string
	credential string
	logger     *zap.Logger

	state atomic.Int32

	// Set once Active.
	user    UserInfo
	channel uuid.UUID
	conn    *Connection
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run blocks until the connection ends. Cancelling ctx closes the socket
// with 1001. The returned error is the reason the connection was refused;
// a session that reached Active returns nil.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.socket.Close(websocket.CloseGoingAway, "server shutting down")
	})
	defer stop()

	if err := s.open(ctx); err != nil {
		code, reason := closeCodeFor(err)
		if code == websocket.CloseInternalServerErr {
			s.logger.Error("session refused", zap.Error(err))
		} else {
			s.logger.Info("session refused", zap.Int("close_code", code), zap.Error(err))
		}
		s.socket.Close(code, reason)
		s.setState(StateClosed)
		return err
	}

	s.serve(ctx)
	s.close()
	return nil
}

func (s *Session) open(ctx context.Context) error {
	s.setState(StateAuthenticating)
	if s.channelID == "" {
		return fmt.Errorf("missing channel id: %w", apperr.ErrInvalidArgument)
	}
	if s.credential == "" {
		return fmt.Errorf("missing token: %w", apperr.ErrInvalidArgument)
	}

	user, err := s.hub.auth.ResolveIdentity(ctx, s.credential)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	s.user = userInfo(user)
	s.logger = s.logger.With(zap.Stringer("user_id", user.ID))

	s.setState(StateAuthorizing)
	groupID, err := s.hub.oracle.ResolveChannelGroup(ctx, s.channelID)
	if err != nil {
		return fmt.Errorf("resolve channel: %w", err)
	}
	ok, err := s.hub.oracle.IsMember(ctx, user.ID, groupID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("user is not a member of group %s: %w", groupID, apperr.ErrForbidden)
	}
	// ResolveChannelGroup only succeeds for a channel id it could parse.
	s.channel, err = uuid.Parse(s.channelID)
	if err != nil {
		return fmt.Errorf("parse channel id: %w", apperr.ErrInvalidArgument)
	}
	// uuid.Parse accepts upper case, braces and urn: prefixes. The registry
	// is keyed by the canonical form, the same one the REST handlers use.
	s.channelID = s.channel.String()

	conn := NewConnection(s.user, s.channelID, s.socket)
	err = s.hub.registry.register(s.channelID, conn, user.ID, func(users []uuid.UUID) {
		s.sendEnvelope(conn, ConnectionEstablished{
			User:           s.user,
			ChannelID:      s.channelID,
			ConnectedUsers: users,
		})
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.conn = conn
	s.setState(StateActive)
	s.logger.Info("session active", zap.Stringer("connection_id", conn.ID()))

	s.broadcast(UserConnected{User: s.user}, user.ID)
	return nil
}

func (s *Session) serve(ctx context.Context) {
	for {
		data, err := s.socket.ReadMessage()
		if err != nil {
			if !IsExpectedClose(err) {
				s.logger.Debug("read ended", zap.Error(err))
			}
			return
		}
		s.handleFrame(ctx, data)
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	frame, err := DecodeFrame(data, s.hub.maxMessageLength)
	if err != nil {
		s.sendEnvelope(s.conn, Error{Message: err.Error()})
		return
	}

	switch f := frame.(type) {
	case SubmitMessage:
		s.submitMessage(ctx, f.Content)
	case SetTyping:
		s.broadcast(Typing{User: s.user, IsTyping: f.IsTyping}, s.user.ID)
	}
}

// submitMessage persists first. Nobody hears about a message the store
// did not accept.
func (s *Session) submitMessage(ctx context.Context, content string) {
	msg, err := s.hub.messages.Create(ctx, s.channel, s.user.ID, content)
	if err != nil {
		s.logger.Error("failed to save message", zap.Error(err))
		s.sendEnvelope(s.conn, Error{Message: "failed to save message"})
		return
	}

	announced := NewMessageFrom(msg, s.user)
	s.sendEnvelope(s.conn, MessageSent{NewMessage: announced})
	s.broadcast(announced, s.user.ID)
}

func (s *Session) close() {
	s.setState(StateClosing)
	s.hub.registry.Unregister(s.channelID, s.conn, s.user.ID)
	if s.conn != nil {
		s.broadcast(UserDisconnected{User: s.user}, uuid.Nil)
	}
	s.socket.Close(websocket.CloseNormalClosure, "")
	s.setState(StateClosed)
	s.logger.Info("session closed")
}

func (s *Session) broadcast(env Envelope, exclude uuid.UUID) {
	if err := s.hub.broadcaster.Broadcast(s.channelID, env, exclude); err != nil {
		s.logger.Error("broadcast failed", zap.String("type", env.Type()), zap.Error(err))
	}
}

// sendEnvelope writes to this session's own connection. A full queue ends
// the session: the socket is closed and the read loop returns.
func (s *Session) sendEnvelope(conn *Connection, env Envelope) {
	payload, err := Encode(env)
	if err != nil {
		s.logger.Error("encode envelope", zap.String("type", env.Type()), zap.Error(err))
		return
	}
	if err := conn.Send(payload); err != nil {
		s.logger.Warn("send to own connection failed", zap.String("type", env.Type()), zap.Error(err))
		conn.Close(websocket.CloseTryAgainLater, "slow consumer")
	}
}

func closeCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		return CloseInvalidArgument, "invalid_argument: " + rootMessage(err)
	case errors.Is(err, apperr.ErrUnauthenticated):
		return CloseUnauthenticated, "unauthenticated"
	case errors.Is(err, apperr.ErrForbidden):
		return CloseForbidden, "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		return CloseNotFound, "not_found"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

// rootMessage drops the trailing sentinel text so the close reason stays
// short.
func rootMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+apperr.ErrInvalidArgument.Error())
}
