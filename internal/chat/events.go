package chat

// Client-to-server event names. These match the socket contract the web
// client speaks.
const (
	EventChatJoin    = "chat:join"
	EventChatLeave   = "chat:leave"
	EventMessageSend = "message:send"
	EventChatTyping  = "chat:typing"
)

// Server-to-client event names.
const (
	EventChatJoinSuccess  = "chat:join|success"
	EventChatJoinError    = "chat:join|error"
	EventChatLeaveSuccess = "chat:leave|success"
	// EventChatLeaveError exists in the client contract but is never
	// emitted: leave is idempotent, and malformed frames are dropped at
	// the decode layer without a reply.
	EventChatLeaveError     = "chat:leave|error"
	EventMessageSendSuccess = "message:send|success"
	EventMessageSendError   = "message:send|error"
	EventMessageReceived    = "message:received"
	EventTypingReceived     = "chat:typing|received"
)

// ClientFrame is one decoded client event. Frames for a single connection
// are dispatched strictly in arrival order.
type ClientFrame struct {
	Type     string `json:"type"`
	TargetID int64  `json:"target_id"`
	Body     string `json:"body,omitempty"`
}

// ServerFrame is one outbound event.
type ServerFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ChatPayload carries a room key and its full ordered history. Used for
// join and send acknowledgments and for room broadcasts.
type ChatPayload struct {
	Room  string    `json:"room"`
	Chats []Message `json:"chats"`
}

// RoomPayload carries only a room key.
type RoomPayload struct {
	Room string `json:"room"`
}

// ErrorPayload carries an operation-scoped failure reason.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// TypingPayload is the ephemeral typing indicator. Receivers clear the
// indicator after ExpiresInMS of silence; no stop event is ever sent.
type TypingPayload struct {
	FromUserID  int64 `json:"from_user_id"`
	ExpiresInMS int64 `json:"expires_in_ms"`
}
