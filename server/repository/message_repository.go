package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"semchat/server/domain"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create assigns the message id and creation timestamp and persists the row.
// The returned record is the durable system-of-record copy; the same id later
// keys the vector index point.
func (r *MessageRepository) Create(ctx context.Context, senderID, receiverID, text string, fileID *string) (domain.Message, error) {
	message := domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		FileID:     fileID,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages(message_id, sender_id, receiver_id, body, file_id)
		VALUES($1, $2, $3, $4, $5)
		RETURNING created_at
	`, message.ID, message.SenderID, message.ReceiverID, message.Text, message.FileID).Scan(&message.CreatedAt)
	return message, err
}

// ListForUser returns messages where the user is sender or receiver, newest
// first. This is the cross-conversation recent-activity view; per-conversation
// reads go through ListConversation.
func (r *MessageRepository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id AS id, sender_id, receiver_id, body, file_id, created_at
		FROM messages
		WHERE sender_id=$1 OR receiver_id=$1
		ORDER BY created_at DESC, message_id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListConversation returns the newest messages of the unordered pair
// {userID, peerID}.
func (r *MessageRepository) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id AS id, sender_id, receiver_id, body, file_id, created_at
		FROM messages
		WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
		ORDER BY created_at DESC, message_id DESC
		LIMIT $3
	`, userID, peerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListBatch pages through the full message history oldest first, keyed by
// (created_at, message_id). Used by the reindex tool.
func (r *MessageRepository) ListBatch(ctx context.Context, cursorCreatedAt *time.Time, cursorID *string, limit int) ([]domain.Message, error) {
	base := `
		SELECT message_id AS id, sender_id, receiver_id, body, file_id, created_at
		FROM messages`
	args := []any{}
	if cursorCreatedAt != nil && cursorID != nil {
		base += ` WHERE (created_at > $1 OR (created_at = $1 AND message_id > $2))`
		args = append(args, *cursorCreatedAt, *cursorID)
		base += ` ORDER BY created_at, message_id LIMIT $3`
	} else {
		base += ` ORDER BY created_at, message_id LIMIT $1`
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	items := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.FileID, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
