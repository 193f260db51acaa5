package chat

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/linkhub/chat-service/pkg/auth"
)

// fakeConn records delivered frames; it stands in for a WebSocket client.
type fakeConn struct {
	mu     sync.Mutex
	frames []ServerFrame
}

func (c *fakeConn) Deliver(frame ServerFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *fakeConn) all() []ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) last() (ServerFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return ServerFrame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

func (c *fakeConn) ofType(eventType string) []ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ServerFrame
	for _, f := range c.frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

// memStore is an in-memory MessageStore with monotonic ids and timestamps.
type memStore struct {
	mu        sync.Mutex
	messages  []Message
	nextID    int64
	appendErr error
}

func newMemStore() *memStore { return &memStore{nextID: 1} }

func (s *memStore) Append(_ context.Context, senderID, recipientID int64, body string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return Message{}, s.appendErr
	}
	msg := Message{
		ID:          s.nextID,
		Timestamp:   time.Unix(0, s.nextID*int64(time.Millisecond)),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) History(_ context.Context, a, b int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) DeletePair(_ context.Context, a, b int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// memKV is an in-memory KV backend with glob pattern matching.
type memKV struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	delErr  error
}

func newMemKV() *memKV { return &memKV{entries: make(map[string][]byte)} }

func (kv *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.getErr != nil {
		return nil, false, kv.getErr
	}
	data, ok := kv.entries[key]
	return data, ok, nil
}

func (kv *memKV) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.entries[key] = value
	return nil
}

func (kv *memKV) Del(_ context.Context, keys ...string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.delErr != nil {
		return kv.delErr
	}
	for _, k := range keys {
		delete(kv.entries, k)
	}
	return nil
}

func (kv *memKV) Keys(_ context.Context, pattern string) ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	var out []string
	for k := range kv.entries {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (kv *memKV) has(key string) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	_, ok := kv.entries[key]
	return ok
}

func (kv *memKV) size() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.entries)
}

// fakeGraph is an in-memory SocialGraph keyed by canonical pair.
type fakeGraph struct {
	mu    sync.Mutex
	edges map[string]bool
	calls int
	err   error
}

func newFakeGraph() *fakeGraph { return &fakeGraph{edges: make(map[string]bool)} }

func (g *fakeGraph) connect(a, b int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[PairKey(a, b)] = true
}

func (g *fakeGraph) disconnect(a, b int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, PairKey(a, b))
}

func (g *fakeGraph) Connected(_ context.Context, a, b int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return false, g.err
	}
	return g.edges[PairKey(a, b)], nil
}

func (g *fakeGraph) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingNotifier captures enqueued notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	users []int64
}

func (n *recordingNotifier) Enqueue(sender auth.Identity, recipientID int64, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, body)
	n.users = append(n.users, recipientID)
}

func (n *recordingNotifier) bodies() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

var errBackend = errors.New("backend unavailable")
