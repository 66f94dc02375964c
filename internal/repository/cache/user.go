package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/lalith-99/strangersmeet/internal/repository"
)

// UserDirectory is an in-process LRU of user profiles. Rows can be up to
// one TTL stale, IsActive included, so it must not gate authentication.
type UserDirectory struct {
	next  repository.UserRepository
	users *expirable.LRU[uuid.UUID, models.User]
}

func NewUserDirectory(next repository.UserRepository, size int, ttl time.Duration) *UserDirectory {
	return &UserDirectory{
		next:  next,
		users: expirable.NewLRU[uuid.UUID, models.User](size, nil, ttl),
	}
}

func (d *UserDirectory) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if u, ok := d.users.Get(userID); ok {
		return &u, nil
	}

	u, err := d.next.GetByID(ctx, userID)
	if err != nil || u == nil {
		return u, err
	}
	d.users.Add(userID, *u)
	return u, nil
}

