package postgres

import (
	"context"

	"edugame-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MessageStore is the community chat log backed by a pgx pool.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Append inserts the message and returns it with the database-assigned id and timestamp.
func (s *MessageStore) Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO community_messages (sender_name, sender_role, message) VALUES ($1, $2, $3) RETURNING id, created_at`,
		msg.SenderName, string(msg.SenderRole), msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, storeErr("append message", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

// History returns the newest limit messages ordered oldest first.
func (s *MessageStore) History(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, sender_name, sender_role, message, created_at FROM (
    SELECT id, sender_name, sender_role, message, created_at
    FROM community_messages
    ORDER BY created_at DESC, id DESC
    LIMIT $1
) recent
ORDER BY created_at ASC, id ASC`, limit)
	if err != nil {
		return nil, storeErr("message history", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var (
			msg  domain.ChatMessage
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.SenderName, &role, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, storeErr("scan message", err)
		}
		msg.SenderRole = domain.Role(role)
		msg.CreatedAt = msg.CreatedAt.UTC()
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("message history", err)
	}
	return out, nil
}
