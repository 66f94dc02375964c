package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/lalith-99/strangersmeet/internal/mocks"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type harness struct {
	auth     *mocks.MockAuthenticator
	oracle   *mocks.MockMembershipOracle
	store    *mocks.MockMessageStore
	registry *Registry
	hub      *Hub

	channelID string
	groupID   uuid.UUID
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	h := &harness{
		auth:      mocks.NewMockAuthenticator(ctrl),
		oracle:    mocks.NewMockMembershipOracle(ctrl),
		store:     mocks.NewMockMessageStore(ctrl),
		registry:  NewRegistry(),
		channelID: uuid.NewString(),
		groupID:   uuid.New(),
	}
	h.hub = NewHub(h.registry, NewBroadcaster(h.registry, zap.NewNop()), h.auth, h.oracle, h.store, 100, zap.NewNop())
	return h
}

// member sets up the collaborators so token resolves to a member of the
// harness channel.
func (h *harness) member(token, username string) *models.User {
	user := &models.User{ID: uuid.New(), Username: username, IsActive: true}
	h.auth.EXPECT().ResolveIdentity(gomock.Any(), token).Return(user, nil)
	h.oracle.EXPECT().ResolveChannelGroup(gomock.Any(), h.channelID).Return(h.groupID, nil)
	h.oracle.EXPECT().IsMember(gomock.Any(), user.ID, h.groupID).Return(true, nil)
	return user
}

type running struct {
	session *Session
	socket  *fakeSocket
	done    chan error
}

func (h *harness) start(ctx context.Context, channelID, token string) *running {
	socket := newFakeSocket()
	s := h.hub.NewSession(socket, channelID, token)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return &running{session: s, socket: socket, done: done}
}

func (h *harness) join(t *testing.T, ctx context.Context, token, username string) (*running, *models.User) {
	t.Helper()
	user := h.member(token, username)
	r := h.start(ctx, h.channelID, token)
	require.Eventually(t, func() bool { return r.session.State() == StateActive }, 2*time.Second, 5*time.Millisecond)
	return r, user
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func TestSession_RefusedBeforeActive(t *testing.T) {
	tests := []struct {
		name      string
		channelID func(h *harness) string
		token     string
		setup     func(h *harness)
		wantCode  int
		wantErr   error
	}{
		{
			name:      "missing token",
			channelID: func(h *harness) string { return h.channelID },
			wantCode:  CloseInvalidArgument,
			wantErr:   apperr.ErrInvalidArgument,
		},
		{
			name:      "missing channel",
			channelID: func(*harness) string { return "" },
			token:     "tok",
			wantCode:  CloseInvalidArgument,
			wantErr:   apperr.ErrInvalidArgument,
		},
		{
			name:      "bad credential",
			channelID: func(h *harness) string { return h.channelID },
			token:     "forged",
			setup: func(h *harness) {
				h.auth.EXPECT().ResolveIdentity(gomock.Any(), "forged").
					Return(nil, fmt.Errorf("parse token: %w", apperr.ErrUnauthenticated))
			},
			wantCode: CloseUnauthenticated,
			wantErr:  apperr.ErrUnauthenticated,
		},
		{
			name:      "unknown channel",
			channelID: func(h *harness) string { return h.channelID },
			token:     "tok",
			setup: func(h *harness) {
				h.auth.EXPECT().ResolveIdentity(gomock.Any(), "tok").Return(&models.User{ID: uuid.New()}, nil)
				h.oracle.EXPECT().ResolveChannelGroup(gomock.Any(), h.channelID).
					Return(uuid.Nil, fmt.Errorf("channel: %w", apperr.ErrNotFound))
			},
			wantCode: CloseNotFound,
			wantErr:  apperr.ErrNotFound,
		},
		{
			name:      "oracle unavailable",
			channelID: func(h *harness) string { return h.channelID },
			token:     "tok",
			setup: func(h *harness) {
				h.auth.EXPECT().ResolveIdentity(gomock.Any(), "tok").Return(&models.User{ID: uuid.New()}, nil)
				h.oracle.EXPECT().ResolveChannelGroup(gomock.Any(), h.channelID).Return(uuid.Nil, errors.New("connection refused"))
			},
			wantCode: websocket.CloseInternalServerErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			r := h.start(context.Background(), tt.channelID(h), tt.token)
			err := r.wait(t)

			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			require.Equal(t, tt.wantCode, r.socket.code())
			require.Equal(t, StateClosed, r.session.State())
			require.Empty(t, r.socket.received(t))
			channels, conns := h.registry.Stats()
			require.Zero(t, channels)
			require.Zero(t, conns)
		})
	}
}

func TestSession_NonMemberIsForbiddenAndLeavesRegistryAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	member, memberUser := h.join(t, ctx, "member-token", "member")

	intruder := &models.User{ID: uuid.New(), Username: "intruder"}
	h.auth.EXPECT().ResolveIdentity(gomock.Any(), "intruder-token").Return(intruder, nil)
	h.oracle.EXPECT().ResolveChannelGroup(gomock.Any(), h.channelID).Return(h.groupID, nil)
	h.oracle.EXPECT().IsMember(gomock.Any(), intruder.ID, h.groupID).Return(false, nil)

	r := h.start(ctx, h.channelID, "intruder-token")
	require.ErrorIs(t, r.wait(t), apperr.ErrForbidden)
	require.Equal(t, CloseForbidden, r.socket.code())

	require.Equal(t, []uuid.UUID{memberUser.ID}, h.registry.ConnectedUsers(h.channelID))
	require.Equal(t, []string{TypeConnectionEstablished}, member.socket.types(t))
}

func TestSession_MessageGoesToSenderAsAckAndToOthersAsNewMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob, bobUser := h.join(t, ctx, "bob-token", "bob")
	alice, aliceUser := h.join(t, ctx, "alice-token", "alice")

	established := alice.socket.waitFor(t, TypeConnectionEstablished)
	require.ElementsMatch(t, []any{aliceUser.ID.String(), bobUser.ID.String()}, established["connected_users"])
	joined := bob.socket.waitFor(t, TypeUserConnected)
	require.Equal(t, aliceUser.ID.String(), joined["user"].(map[string]any)["id"])

	stored := &models.Message{
		ID:        uuid.New(),
		Content:   "hello",
		AuthorID:  aliceUser.ID,
		ChannelID: uuid.MustParse(h.channelID),
		CreatedAt: time.Now().UTC(),
	}
	h.store.EXPECT().
		Create(gomock.Any(), uuid.MustParse(h.channelID), aliceUser.ID, "hello").
		Return(stored, nil).
		Times(1)

	alice.socket.deliver(t, map[string]any{"type": "new_message", "content": "hello"})

	ack := alice.socket.waitFor(t, TypeMessageSent)
	got := bob.socket.waitFor(t, TypeNewMessage)
	require.Equal(t, stored.ID.String(), ack["id"])
	require.Equal(t, stored.ID.String(), got["id"])
	require.Equal(t, "hello", got["content"])
	require.Equal(t, map[string]any{"id": aliceUser.ID.String(), "username": "alice"}, got["author"])

	require.Equal(t, []string{TypeConnectionEstablished, TypeMessageSent}, alice.socket.types(t))
}

func TestSession_TypingSkipsSender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob, _ := h.join(t, ctx, "bob-token", "bob")
	alice, _ := h.join(t, ctx, "alice-token", "alice")

	alice.socket.deliver(t, map[string]any{"type": "typing", "is_typing": true})

	typing := bob.socket.waitFor(t, TypeTyping)
	require.Equal(t, true, typing["is_typing"])
	require.Equal(t, "alice", typing["user"].(map[string]any)["username"])
	require.NotContains(t, alice.socket.types(t), TypeTyping)
}

func TestSession_MalformedFrameKeepsSessionActive(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.join(t, context.Background(), "alice-token", "alice")

	alice.socket.deliver(t, []byte(`{not json`))
	alice.socket.deliver(t, map[string]any{"type": "new_message", "content": "   "})

	require.Eventually(t, func() bool {
		n := 0
		for _, typ := range alice.socket.types(t) {
			if typ == TypeError {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StateActive, alice.session.State())
}

func TestSession_StoreFailureReportsErrorOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob, _ := h.join(t, ctx, "bob-token", "bob")
	alice, _ := h.join(t, ctx, "alice-token", "alice")
	bob.socket.waitFor(t, TypeUserConnected)

	h.store.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), "lost").Return(nil, errors.New("db down"))
	alice.socket.deliver(t, map[string]any{"type": "new_message", "content": "lost"})

	failure := alice.socket.waitFor(t, TypeError)
	require.Equal(t, "failed to save message", failure["message"])
	require.Equal(t, []string{TypeConnectionEstablished, TypeUserConnected}, bob.socket.types(t))
	require.Equal(t, StateActive, alice.session.State())
}

func TestSession_DisconnectUnregistersAndNotifiesOthers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob, bobUser := h.join(t, ctx, "bob-token", "bob")
	dave, daveUser := h.join(t, ctx, "dave-token", "dave")

	dave.socket.drop()

	require.NoError(t, dave.wait(t))
	require.Equal(t, StateClosed, dave.session.State())

	left := bob.socket.waitFor(t, TypeUserDisconnected)
	require.Equal(t, daveUser.ID.String(), left["user"].(map[string]any)["id"])
	require.Equal(t, []uuid.UUID{bobUser.ID}, h.registry.ConnectedUsers(h.channelID))
}

func TestSession_ContextCancelClosesWithGoingAway(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	alice, _ := h.join(t, ctx, "alice-token", "alice")
	cancel()

	require.NoError(t, alice.wait(t))
	require.Equal(t, websocket.CloseGoingAway, alice.socket.code())
	require.Empty(t, h.registry.ConnectedUsers(h.channelID))
}

func TestSession_NonCanonicalChannelIDJoinsCanonicalEntry(t *testing.T) {
	h := newHarness(t)
	upper := strings.ToUpper(h.channelID)

	user := &models.User{ID: uuid.New(), Username: "carol", IsActive: true}
	h.auth.EXPECT().ResolveIdentity(gomock.Any(), "carol-token").Return(user, nil)
	h.oracle.EXPECT().ResolveChannelGroup(gomock.Any(), upper).Return(h.groupID, nil)
	h.oracle.EXPECT().IsMember(gomock.Any(), user.ID, h.groupID).Return(true, nil)

	carol := h.start(context.Background(), upper, "carol-token")
	require.Eventually(t, func() bool { return carol.session.State() == StateActive }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, []uuid.UUID{user.ID}, h.registry.ConnectedUsers(h.channelID))
	require.Empty(t, h.registry.ConnectedUsers(upper))
	established := carol.socket.waitFor(t, TypeConnectionEstablished)
	require.Equal(t, h.channelID, established["channel_id"])

	// A broadcast addressed by the canonical id, as the REST handlers send
	// it, reaches the connection.
	deleted := uuid.New()
	require.NoError(t, h.hub.broadcaster.Broadcast(uuid.MustParse(upper).String(), MessageDelete{ID: deleted}, uuid.Nil))
	got := carol.socket.waitFor(t, TypeMessageDelete)
	require.Equal(t, deleted.String(), got["id"])

	carol.socket.drop()
	require.NoError(t, carol.wait(t))
	require.Empty(t, h.registry.ConnectedUsers(h.channelID))
}
