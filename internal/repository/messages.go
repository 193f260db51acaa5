package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/internal/chat"
)

// MessageRepository is the durable, append-only chat message store.
// Messages are immutable once written; the only delete is the whole-pair
// cascade that follows a connection-edge removal.
type MessageRepository struct {
	*BaseRepository
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(db *sql.DB, log *zap.Logger) *MessageRepository {
	return &MessageRepository{
		BaseRepository: NewBaseRepository(db, log.With(zap.String("module", "message_repository"))),
	}
}

// Append inserts one message and returns it with the id and timestamp the
// database assigned. Appends from one sender arrive here in call order;
// each insert is atomic.
func (r *MessageRepository) Append(ctx context.Context, senderID, recipientID int64, body string) (chat.Message, error) {
	var msg chat.Message
	err := r.DB().QueryRowContext(ctx, `
		INSERT INTO chat_messages (sender_id, recipient_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		senderID, recipientID, body,
	).Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	msg.SenderID = senderID
	msg.RecipientID = recipientID
	msg.Body = body
	return msg, nil
}

// History returns every message between a and b, in either direction,
// ascending by timestamp then id.
func (r *MessageRepository) History(ctx context.Context, a, b int64) ([]chat.Message, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, created_at, sender_id, recipient_id, body
		FROM chat_messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC, id ASC`,
		a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.SenderID, &m.RecipientID, &m.Body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return msgs, nil
}

// DeletePair hard-deletes every message between a and b. Invoked when the
// pair's connection edge is removed externally.
func (r *MessageRepository) DeletePair(ctx context.Context, a, b int64) error {
	res, err := r.DB().ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)`,
		a, b,
	)
	if err != nil {
		return fmt.Errorf("delete pair messages: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.log.Info("deleted pair messages",
			zap.Int64("user_a", a), zap.Int64("user_b", b), zap.Int64("count", n))
	}
	return nil
}
