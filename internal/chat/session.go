package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/pkg/auth"
)

// State is the lifecycle position of one connection.
type State int

const (
	// StateConnecting is the initial state, before the handshake
	// credential has been verified.
	StateConnecting State = iota
	// StateRejected is terminal: the credential was missing, invalid or
	// expired and the connection is being closed without any event.
	StateRejected
	// StateIdle is authenticated with no room membership.
	StateIdle
	// StateInRoom is authenticated and subscribed to exactly one room.
	StateInRoom
	// StateTerminated is terminal: the client disconnected.
	StateTerminated
)

// Notifier accepts fire-and-forget push-notification requests after a
// successful send. Failures stay inside the notifier; they never reach
// the sender.
type Notifier interface {
	Enqueue(sender auth.Identity, recipientID int64, body string)
}

// SessionDeps are the collaborators a session orchestrates.
type SessionDeps struct {
	Rooms   *RoomRegistry
	Cache   *ConversationCache
	Store   MessageStore
	Gate    *Gate
	Typing  *TypingRelay
	Notify  Notifier
	Metrics *Metrics
}

// Session is the per-connection orchestrator. Every client frame for a
// connection is dispatched from that connection's single reader
// goroutine, strictly in arrival order, so session state needs no lock.
// A session holds at most one room membership at a time.
type Session struct {
	conn     Subscriber
	identity auth.Identity
	state    State
	room     string
	deps     SessionDeps
	log      *zap.Logger
}

// NewSession creates a session in the connecting state.
func NewSession(conn Subscriber, deps SessionDeps, log *zap.Logger) *Session {
	return &Session{
		conn:  conn,
		state: StateConnecting,
		deps:  deps,
		log:   log.With(zap.String("module", "session")),
	}
}

// Authenticate moves the session out of the connecting state with the
// identity decoded from its handshake credential. The identity is
// immutable for the connection's lifetime.
func (s *Session) Authenticate(identity auth.Identity) {
	if s.state != StateConnecting {
		return
	}
	s.identity = identity
	s.state = StateIdle
	s.log = s.log.With(zap.Int64("user_id", identity.ID))
}

// Reject terminates an unauthenticated session. Fail closed, silently:
// no event is emitted.
func (s *Session) Reject() {
	if s.state == StateConnecting {
		s.state = StateRejected
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Room returns the active room key, or "" when idle.
func (s *Session) Room() string { return s.room }

// Identity returns the identity claim bound at authentication.
func (s *Session) Identity() auth.Identity { return s.identity }

// Dispatch handles one client frame. Frames arriving before
// authentication or after termination are dropped.
func (s *Session) Dispatch(ctx context.Context, frame ClientFrame) {
	if s.state != StateIdle && s.state != StateInRoom {
		return
	}
	switch frame.Type {
	case EventChatJoin:
		s.handleJoin(ctx, frame.TargetID)
	case EventMessageSend:
		s.handleSend(ctx, frame.TargetID, frame.Body)
	case EventChatLeave:
		s.handleLeave(frame.TargetID)
	case EventChatTyping:
		s.handleTyping(frame.TargetID)
	default:
		s.log.Debug("unknown client event", zap.String("type", frame.Type))
	}
}

// Disconnect releases any room membership and stops future dispatch.
// In-flight persistence is allowed to complete; there are no store side
// effects here.
func (s *Session) Disconnect() {
	if s.room != "" {
		s.deps.Rooms.Leave(s.room, s.conn)
		s.room = ""
	}
	if s.state == StateIdle || s.state == StateInRoom {
		s.state = StateTerminated
	}
}

func (s *Session) handleJoin(ctx context.Context, targetID int64) {
	if targetID == s.identity.ID {
		s.fail(EventChatJoinError, ErrSelfTarget.Error())
		return
	}

	ok, err := s.deps.Gate.Authorized(ctx, s.identity.ID, targetID)
	if err != nil {
		s.log.Warn("join authorization check failed", zap.Int64("target_id", targetID), zap.Error(err))
		s.fail(EventChatJoinError, "authorization unavailable")
		return
	}
	if !ok {
		s.fail(EventChatJoinError, ErrNotConnected.Error())
		return
	}

	// History is fetched before membership changes so a store failure
	// leaves the session exactly where it was.
	history, err := s.deps.Cache.History(ctx, s.identity.ID, targetID)
	if err != nil {
		s.log.Error("join history fetch failed", zap.Int64("target_id", targetID), zap.Error(err))
		s.fail(EventChatJoinError, "failed to load conversation")
		return
	}

	key := PairKey(s.identity.ID, targetID)
	if s.room != "" && s.room != key {
		s.deps.Rooms.Leave(s.room, s.conn)
	}
	s.deps.Rooms.Join(key, s.conn)
	s.room = key
	s.state = StateInRoom

	s.conn.Deliver(ServerFrame{
		Type:    EventChatJoinSuccess,
		Payload: ChatPayload{Room: key, Chats: history},
	})
}

func (s *Session) handleSend(ctx context.Context, targetID int64, body string) {
	if strings.TrimSpace(body) == "" {
		// Silently ignored: no event, no store mutation.
		return
	}

	// Authorization is re-evaluated against the target on every send,
	// independent of room membership. A membership acquired before the
	// edge was revoked grants nothing.
	ok, err := s.deps.Gate.Authorized(ctx, s.identity.ID, targetID)
	if err != nil {
		s.log.Warn("send authorization check failed", zap.Int64("target_id", targetID), zap.Error(err))
		s.fail(EventMessageSendError, "authorization unavailable")
		return
	}
	if !ok {
		s.fail(EventMessageSendError, ErrNotConnected.Error())
		return
	}

	if _, err := s.deps.Store.Append(ctx, s.identity.ID, targetID, body); err != nil {
		s.log.Error("message append failed", zap.Int64("target_id", targetID), zap.Error(err))
		s.fail(EventMessageSendError, "failed to send message")
		return
	}
	s.deps.Metrics.MessagesSent.Inc()

	key := PairKey(s.identity.ID, targetID)
	var history []Message
	if invErr := s.deps.Cache.Invalidate(ctx, key); invErr != nil {
		// The append is already durable; failing here would invite a
		// retry that duplicates it. Serve this frame from the store and
		// leave the stale entry to the next successful invalidation.
		history, err = s.deps.Store.History(ctx, s.identity.ID, targetID)
	} else {
		history, err = s.deps.Cache.History(ctx, s.identity.ID, targetID)
	}
	if err != nil {
		s.log.Error("post-send history fetch failed", zap.Int64("target_id", targetID), zap.Error(err))
		s.fail(EventMessageSendError, "failed to load conversation")
		return
	}

	payload := ChatPayload{Room: key, Chats: history}
	s.deps.Rooms.Broadcast(key, ServerFrame{Type: EventMessageReceived, Payload: payload})
	// The sender is acknowledged directly: it may not be a subscriber.
	s.conn.Deliver(ServerFrame{Type: EventMessageSendSuccess, Payload: payload})

	s.deps.Notify.Enqueue(s.identity, targetID, body)
}

func (s *Session) handleLeave(targetID int64) {
	key := PairKey(s.identity.ID, targetID)
	// Idempotent: leaving a room we are not in is a no-op, not an error.
	s.deps.Rooms.Leave(key, s.conn)
	if s.room == key {
		s.room = ""
		s.state = StateIdle
	}
	s.conn.Deliver(ServerFrame{
		Type:    EventChatLeaveSuccess,
		Payload: RoomPayload{Room: key},
	})
}

func (s *Session) handleTyping(targetID int64) {
	s.deps.Typing.Send(s.identity.ID, targetID)
}

func (s *Session) fail(event, reason string) {
	s.conn.Deliver(ServerFrame{Type: event, Payload: ErrorPayload{Reason: reason}})
}
