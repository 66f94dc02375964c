package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/strangersmeet/internal/models"
)

type GroupStore struct {
	pool *pgxpool.Pool
}

func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

func (s *GroupStore) GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	query := `
		SELECT id, name, owner_id, created_at
		FROM groups
		WHERE id = $1`

	var g models.Group
	err := s.pool.QueryRow(ctx, query, groupID).Scan(
		&g.ID,
		&g.Name,
		&g.OwnerID,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}
