package chat

import "context"

// Profile is the denormalized display identity of a conversation partner.
// The user table is owned by the profile service; this subsystem only
// reads the columns it renders.
type Profile struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	PhotoPath string `json:"profile_photo_path"`
}

// ConversationSummary is one inbox row: the latest message exchanged with
// a partner, plus the partner's display profile. A summary with a zero
// Message marks a conversation that has not started yet.
type ConversationSummary struct {
	Message
	Partner Profile `json:"partner"`
}

// InboxStore answers the read-only conversation queries behind the REST
// surface: the inbox, the not-yet-chatted connections, and partner
// profile lookup.
type InboxStore interface {
	// Inbox returns one summary per conversation partner of userID,
	// newest conversation first.
	Inbox(ctx context.Context, userID int64) ([]ConversationSummary, error)
	// NeverChatted returns every user connected to userID with whom no
	// message has been exchanged in either direction.
	NeverChatted(ctx context.Context, userID int64) ([]Profile, error)
	// Profile returns the display profile for id, or nil when no such
	// user exists.
	Profile(ctx context.Context, id int64) (*Profile, error)
}
