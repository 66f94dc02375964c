package api

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/models"
)

type userRepo struct {
	users map[uuid.UUID]*models.User
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return r.users[id], nil
}

type channelRepo struct {
	channels map[uuid.UUID]*models.Channel
}

func (r *channelRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Channel, error) {
	return r.channels[id], nil
}

type groupRepo struct {
	groups map[uuid.UUID]*models.Group
}

func (r *groupRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	return r.groups[id], nil
}

type memberRepo struct {
	members map[uuid.UUID][]uuid.UUID
}

func (r *memberRepo) IsMember(_ context.Context, groupID, userID uuid.UUID) (bool, error) {
	return slices.Contains(r.members[groupID], userID), nil
}

type messageRepo struct {
	mu       sync.Mutex
	messages []models.Message
	clock    time.Time
}

func newMessageRepo() *messageRepo {
	return &messageRepo{clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (r *messageRepo) Create(_ context.Context, channelID, authorID uuid.UUID, content string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Second)
	msg := models.Message{
		ID:        uuid.New(),
		Content:   content,
		AuthorID:  authorID,
		ChannelID: channelID,
		CreatedAt: r.clock,
	}
	r.messages = append(r.messages, msg)
	return &msg, nil
}

func (r *messageRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *messageRepo) Update(_ context.Context, id uuid.UUID, content string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			now := r.clock.Add(time.Minute)
			r.messages[i].Content = content
			r.messages[i].UpdatedAt = &now
			m := r.messages[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (r *messageRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = slices.DeleteFunc(r.messages, func(m models.Message) bool { return m.ID == id })
	return nil
}

func (r *messageRepo) ListByChannel(_ context.Context, channelID uuid.UUID, skip, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inChannel []models.Message
	for _, m := range r.messages {
		if m.ChannelID == channelID {
			inChannel = append(inChannel, m)
		}
	}
	end := max(len(inChannel)-skip, 0)
	start := max(end-limit, 0)
	return append([]models.Message{}, inChannel[start:end]...), nil
}

func (r *messageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
