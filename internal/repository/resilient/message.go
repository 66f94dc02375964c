// Package resilient wraps stores with a circuit breaker so a struggling
// database fails calls fast instead of piling up blocked sessions.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/lalith-99/strangersmeet/internal/repository"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Settings tunes the breaker. Zero values fall back to the defaults below.
type Settings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// MessageStore guards a MessageRepository with a circuit breaker.
type MessageStore struct {
	next repository.MessageRepository
	cb   *gobreaker.CircuitBreaker
}

func NewMessageStore(next repository.MessageRepository, s Settings, logger *zap.Logger) *MessageStore {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 15 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		// A cancelled request says nothing about the database.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &MessageStore{next: next, cb: cb}
}

func (s *MessageStore) Create(ctx context.Context, channelID uuid.UUID, authorID uuid.UUID, content string) (*models.Message, error) {
	return message(s.cb.Execute(func() (any, error) {
		return s.next.Create(ctx, channelID, authorID, content)
	}))
}

func (s *MessageStore) GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	return message(s.cb.Execute(func() (any, error) {
		return s.next.GetByID(ctx, messageID)
	}))
}

func (s *MessageStore) Update(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error) {
	return message(s.cb.Execute(func() (any, error) {
		return s.next.Update(ctx, messageID, content)
	}))
}

func (s *MessageStore) Delete(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.Delete(ctx, messageID)
	})
	return err
}

func (s *MessageStore) ListByChannel(ctx context.Context, channelID uuid.UUID, skip, limit int) ([]models.Message, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.next.ListByChannel(ctx, channelID, skip, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]models.Message), nil
}

func message(res any, err error) (*models.Message, error) {
	if err != nil {
		return nil, err
	}
	msg, _ := res.(*models.Message)
	return msg, nil
}
