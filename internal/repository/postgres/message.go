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

const messageColumns = `id, content, author_id, channel_id, created_at, updated_at`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	if err := row.Scan(
		&msg.ID,
		&msg.Content,
		&msg.AuthorID,
		&msg.ChannelID,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, channelID uuid.UUID, authorID uuid.UUID, content string) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, content, author_id, channel_id, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, now())
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, content, authorID, channelID))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) Update(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) Delete(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *MessageStore) ListByChannel(ctx context.Context, channelID uuid.UUID, skip, limit int) ([]models.Message, error) {
	// Page newest-first in the inner query, then flip so the client gets the
	// page in reading order.
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id = $1
			ORDER BY created_at DESC
			OFFSET $2
			LIMIT $3
		) page
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, channelID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
