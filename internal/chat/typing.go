package chat

import "time"

// TypingExpiry is the quiet interval after which receivers clear the
// typing indicator on their own. Tolerating lost stop-events this way is
// cheaper than acknowledging them: a stray indicator simply times out.
const TypingExpiry = 4 * time.Second

// TypingRelay broadcasts ephemeral presence signals over the room
// router's channel. Signals are never persisted, never acknowledged, and
// deliberately skip the authorization gate: the worst case of a stray
// indicator is harmless, and the signal is too frequent to be worth a
// graph lookup per keystroke.
type TypingRelay struct {
	rooms *RoomRegistry
}

// NewTypingRelay wraps rooms.
func NewTypingRelay(rooms *RoomRegistry) *TypingRelay {
	return &TypingRelay{rooms: rooms}
}

// Send broadcasts a typing indicator from fromID to the canonical room it
// shares with targetID.
func (t *TypingRelay) Send(fromID, targetID int64) {
	t.rooms.Broadcast(PairKey(fromID, targetID), ServerFrame{
		Type: EventTypingReceived,
		Payload: TypingPayload{
			FromUserID:  fromID,
			ExpiresInMS: TypingExpiry.Milliseconds(),
		},
	})
}
