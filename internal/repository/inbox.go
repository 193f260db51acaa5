package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/internal/chat"
)

// InboxRepository serves the read-only conversation queries: the inbox,
// the not-yet-chatted connections, and partner profile lookup. It joins
// the externally owned users and connection_edges tables, which it never
// writes.
type InboxRepository struct {
	*BaseRepository
}

// NewInboxRepository creates an inbox repository.
func NewInboxRepository(db *sql.DB, log *zap.Logger) *InboxRepository {
	return &InboxRepository{
		BaseRepository: NewBaseRepository(db, log.With(zap.String("module", "inbox_repository"))),
	}
}

// Inbox returns the latest message per conversation partner of userID,
// newest conversation first, with the partner's display profile attached.
func (r *InboxRepository) Inbox(ctx context.Context, userID int64) ([]chat.ConversationSummary, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT * FROM (
			SELECT DISTINCT ON (partner_id)
			       m.id, m.created_at, m.sender_id, m.recipient_id, m.body,
			       u.id AS partner_id_out, u.full_name, u.profile_photo_path
			FROM (
				SELECT *,
				       CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS partner_id
				FROM chat_messages
				WHERE sender_id = $1 OR recipient_id = $1
			) m
			JOIN users u ON u.id = m.partner_id
			ORDER BY partner_id, m.created_at DESC, m.id DESC
		) latest
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	defer rows.Close()

	var out []chat.ConversationSummary
	for rows.Next() {
		var s chat.ConversationSummary
		if err := rows.Scan(
			&s.ID, &s.Timestamp, &s.SenderID, &s.RecipientID, &s.Body,
			&s.Partner.ID, &s.Partner.FullName, &s.Partner.PhotoPath,
		); err != nil {
			return nil, fmt.Errorf("scan inbox row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbox: %w", err)
	}
	return out, nil
}

// NeverChatted returns every user connected to userID with whom no
// message exists in either direction.
func (r *InboxRepository) NeverChatted(ctx context.Context, userID int64) ([]chat.Profile, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT u.id, u.full_name, u.profile_photo_path
		FROM users u
		WHERE u.id <> $1
		  AND EXISTS (
			SELECT 1 FROM connection_edges e
			WHERE (e.from_id = $1 AND e.to_id = u.id)
			   OR (e.from_id = u.id AND e.to_id = $1)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM chat_messages m
			WHERE (m.sender_id = $1 AND m.recipient_id = u.id)
			   OR (m.sender_id = u.id AND m.recipient_id = $1)
		  )
		ORDER BY u.full_name, u.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query never-chatted: %w", err)
	}
	defer rows.Close()

	var out []chat.Profile
	for rows.Next() {
		var p chat.Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.PhotoPath); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate never-chatted: %w", err)
	}
	return out, nil
}

// Profile returns the display profile for id, or nil when the user does
// not exist.
func (r *InboxRepository) Profile(ctx context.Context, id int64) (*chat.Profile, error) {
	var p chat.Profile
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, full_name, profile_photo_path
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.FullName, &p.PhotoPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup profile %d: %w", id, err)
	}
	return &p, nil
}
