// Package chat implements the direct-messaging core: canonical pair
// addressing, room routing, the conversation cache, the authorization gate,
// the typing relay, and the per-connection session state machine.
package chat

import (
	"context"
	"errors"
	"time"
)

// Message is one durable chat message between two connected users.
// Created only by the message store on a successful send, immutable after.
type Message struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Body        string    `json:"body"`
}

var (
	// ErrNotConnected is returned when two users do not share a connection edge.
	ErrNotConnected = errors.New("users are not connected")
	// ErrSelfTarget is returned when a user targets their own id.
	ErrSelfTarget = errors.New("cannot chat with yourself")
	// ErrEmptyBody is returned when a message body is empty.
	ErrEmptyBody = errors.New("message body is empty")
)

// MessageStore is the durable, append-only store of chat messages.
type MessageStore interface {
	// Append persists a new message and returns it with its assigned id
	// and timestamp.
	Append(ctx context.Context, senderID, recipientID int64, body string) (Message, error)
	// History returns every message between a and b, in either direction,
	// ascending by timestamp then id.
	History(ctx context.Context, a, b int64) ([]Message, error)
	// DeletePair hard-deletes every message between a and b.
	DeletePair(ctx context.Context, a, b int64) error
}

// SocialGraph answers whether two user ids currently share a connection
// edge. The edge table is owned and mutated by the external connection
// service; this subsystem only reads it.
type SocialGraph interface {
	Connected(ctx context.Context, a, b int64) (bool, error)
}
