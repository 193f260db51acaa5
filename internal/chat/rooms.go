package chat

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber is the outbound half of a connection as seen by a room.
// Deliver must not block; slow consumers drop frames instead of stalling
// the broadcast.
type Subscriber interface {
	Deliver(frame ServerFrame)
}

// room is an ephemeral broadcast group for one canonical pair key. Its own
// mutex serializes membership mutation and broadcast per key; operations on
// different keys never contend on it.
type room struct {
	mu      sync.Mutex
	members map[Subscriber]struct{}
}

// RoomRegistry owns the pair-key to membership mapping. It is injected
// into sessions rather than accessed as an ambient singleton. Rooms are
// created lazily on join and dropped as soon as the last member leaves.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   *zap.Logger
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(log *zap.Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*room),
		log:   log.With(zap.String("module", "rooms")),
	}
}

// Join subscribes sub to the room for key, creating the room lazily.
// The registry lock is held across the membership add so a concurrent
// Leave cannot drop the room between creation and subscription.
func (r *RoomRegistry) Join(key string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		rm = &room{members: make(map[Subscriber]struct{})}
		r.rooms[key] = rm
		r.log.Debug("room created", zap.String("room", key))
	}
	rm.mu.Lock()
	rm.members[sub] = struct{}{}
	rm.mu.Unlock()
}

// Leave removes sub from the room for key. Leaving a room the subscriber
// is not in, or a room that does not exist, is a no-op. An emptied room is
// dropped from the registry.
func (r *RoomRegistry) Leave(key string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.members, sub)
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, key)
		r.log.Debug("room dropped", zap.String("room", key))
	}
}

// Broadcast delivers frame to every current subscriber of key, at most
// once per subscriber. A key with no room is a no-op.
func (r *RoomRegistry) Broadcast(key string, frame ServerFrame) {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	for sub := range rm.members {
		sub.Deliver(frame)
	}
	rm.mu.Unlock()
}

// Members reports the current membership count for key.
func (r *RoomRegistry) Members(key string) int {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}
