package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/linkhub/chat-service/internal/chat"
	"github.com/linkhub/chat-service/pkg/auth"
	pkgjson "github.com/linkhub/chat-service/pkg/json"
	"github.com/linkhub/chat-service/pkg/redis"
)

const testSecret = "test-secret"

// In-memory doubles for the durable collaborators.

type memStore struct {
	mu       sync.Mutex
	messages []chat.Message
	nextID   int64
}

func (s *memStore) Append(_ context.Context, senderID, recipientID int64, body string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := chat.Message{
		ID:          s.nextID,
		Timestamp:   time.Unix(0, s.nextID*int64(time.Millisecond)),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
	}
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *memStore) History(_ context.Context, a, b int64) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Message
	for _, m := range s.messages {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
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

type memKV struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemKV() *memKV { return &memKV{entries: make(map[string][]byte)} }

func (kv *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
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
	for _, k := range keys {
		delete(kv.entries, k)
	}
	return nil
}

func (kv *memKV) Keys(_ context.Context, pattern string) ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	// Suffix/prefix globs are all the cache uses.
	var out []string
	for k := range kv.entries {
		if matchGlob(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func matchGlob(pattern, s string) bool {
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return pattern == s
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	return strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) &&
		len(s) >= len(prefix)+len(suffix)
}

type fakeGraph struct {
	mu    sync.Mutex
	edges map[string]bool
}

func (g *fakeGraph) connect(a, b int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges == nil {
		g.edges = make(map[string]bool)
	}
	g.edges[chat.PairKey(a, b)] = true
}

func (g *fakeGraph) Connected(_ context.Context, a, b int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[chat.PairKey(a, b)], nil
}

type noopNotifier struct{}

func (noopNotifier) Enqueue(auth.Identity, int64, string) {}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }
func (p fakePinger) IsAvailable(context.Context) error { return p.err }

type fixture struct {
	server *Server
	store  *memStore
	kv     *memKV
	graph  *fakeGraph
	cache  *chat.ConversationCache
	inbox  *fakeInbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	registry := prometheus.NewRegistry()
	metrics := chat.NewMetrics(registry)
	store := &memStore{}
	kv := newMemKV()
	graph := &fakeGraph{}
	inbox := newFakeInbox()
	rooms := chat.NewRoomRegistry(log)
	cache := chat.NewConversationCache(kv, store, redis.NewKeyBuilder("chat"), log, metrics)

	deps := Deps{
		Sessions: chat.SessionDeps{
			Rooms:   rooms,
			Cache:   cache,
			Store:   store,
			Gate:    chat.NewGate(graph, log, metrics),
			Typing:  chat.NewTypingRelay(rooms),
			Notify:  noopNotifier{},
			Metrics: metrics,
		},
		Cache:     cache,
		Store:     store,
		Inbox:     inbox,
		Metrics:   metrics,
		JWTSecret: testSecret,
		DB:        fakePinger{},
		Redis:     fakePinger{},
		Registry:  registry,
	}
	return &fixture{
		server: New("127.0.0.1:0", "*", deps, log),
		store:  store,
		kv:     kv,
		graph:  graph,
		cache:  cache,
		inbox:  inbox,
	}
}

func signToken(t *testing.T, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  float64(userID),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", auth.SessionCookie+"="+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, pkgjson.Unmarshal(data, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame chat.ClientFrame) {
	t.Helper()
	data, err := pkgjson.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandshakeRejectsBadCredential(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()

	for name, token := range map[string]string{
		"missing": "",
		"garbage": "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			header := http.Header{}
			if token != "" {
				header.Set("Cookie", auth.SessionCookie+"="+token)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			require.Error(t, err, "handshake must fail closed")
			require.Nil(t, conn)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestJoinAndSendOverWebSocket(t *testing.T) {
	f := newFixture(t)
	f.graph.connect(5, 2)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()

	alice := dialWS(t, ts, signToken(t, 5))
	writeFrame(t, alice, chat.ClientFrame{Type: chat.EventChatJoin, TargetID: 2})

	frame := readFrame(t, alice)
	require.Equal(t, chat.EventChatJoinSuccess, frame["type"])
	payload := frame["payload"].(map[string]interface{})
	assert.Equal(t, "room_2_5", payload["room"])

	writeFrame(t, alice, chat.ClientFrame{Type: chat.EventMessageSend, TargetID: 2, Body: "hi"})

	// Subscriber broadcast arrives before the direct ack; collect both.
	types := map[string]bool{}
	for i := 0; i < 2; i++ {
		types[readFrame(t, alice)["type"].(string)] = true
	}
	assert.True(t, types[chat.EventMessageReceived])
	assert.True(t, types[chat.EventMessageSendSuccess])
	assert.Equal(t, 1, f.store.count())
}

func TestJoinErrorOverWebSocket(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()

	alice := dialWS(t, ts, signToken(t, 5))
	writeFrame(t, alice, chat.ClientFrame{Type: chat.EventChatJoin, TargetID: 9})

	frame := readFrame(t, alice)
	assert.Equal(t, chat.EventChatJoinError, frame["type"])
	assert.Equal(t, 0, f.store.count())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserInvalidateHook(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()
	ctx := context.Background()

	_, err := f.store.Append(ctx, 5, 2, "hi")
	require.NoError(t, err)
	_, err = f.cache.History(ctx, 5, 2)
	require.NoError(t, err)
	require.Contains(t, f.kv.entries, "chat:history:room_2_5")

	resp, err := http.Post(ts.URL+"/internal/users/5/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, f.kv.entries, "chat:history:room_2_5")
}

func TestEdgeRemovedHook(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()
	ctx := context.Background()

	_, err := f.store.Append(ctx, 5, 2, "hi")
	require.NoError(t, err)
	_, err = f.cache.History(ctx, 5, 2)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/internal/edges/removed", "application/json",
		strings.NewReader(`{"user_a":5,"user_b":2}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Hard delete, not a mere eviction.
	assert.Equal(t, 0, f.store.count())
	assert.NotContains(t, f.kv.entries, "chat:history:room_2_5")
}

func TestEdgeRemovedHookValidation(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.httpServer.Handler)
	defer ts.Close()

	for name, body := range map[string]string{
		"self pair": `{"user_a":5,"user_b":5}`,
		"zero id":   `{"user_a":0,"user_b":2}`,
		"not json":  `nope`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/internal/edges/removed", "application/json",
				strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}
