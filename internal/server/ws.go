package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linkhub/chat-service/internal/chat"
	"github.com/linkhub/chat-service/pkg/json"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	sendBufferSize = 64
)

// wsClient is the outbound half of one WebSocket connection. Frames go
// through a buffered channel drained by a single writer goroutine, so
// Deliver never blocks a broadcast: a slow consumer drops frames instead.
type wsClient struct {
	conn    *websocket.Conn
	send    chan chat.ServerFrame
	log     *zap.Logger
	metrics *chat.Metrics
	once    sync.Once
	done    chan struct{}
}

func newWSClient(conn *websocket.Conn, log *zap.Logger, metrics *chat.Metrics) *wsClient {
	return &wsClient{
		conn:    conn,
		send:    make(chan chat.ServerFrame, sendBufferSize),
		log:     log,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Deliver implements chat.Subscriber.
func (c *wsClient) Deliver(frame chat.ServerFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.metrics.DroppedFrames.Inc()
		c.log.Warn("slow consumer, dropping frame", zap.String("type", frame.Type))
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump serializes all writes to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case frame := <-c.send:
			data, err := json.Marshal(frame)
			if err != nil {
				c.log.Error("encode frame", zap.String("type", frame.Type), zap.Error(err))
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop decodes client frames and dispatches them in arrival order.
// It returns when the peer disconnects.
func (c *wsClient) readLoop(ctx context.Context, session *chat.Session) {
	defer c.close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("unexpected close", zap.Error(err))
			}
			return
		}
		var frame chat.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Debug("malformed client frame", zap.Error(err))
			continue
		}
		session.Dispatch(ctx, frame)
	}
}

// newUpgrader builds the handshake upgrader with the configured origin
// allowlist. Non-browser clients (no Origin header) are always allowed.
func newUpgrader(allowedOrigins string, log *zap.Logger) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			allowed := allowedOrigins
			if allowed == "" {
				allowed = "localhost,127.0.0.1"
			}
			host := origin
			if i := strings.Index(host, "://"); i >= 0 {
				host = host[i+3:]
			}
			if i := strings.IndexByte(host, ':'); i >= 0 {
				host = host[:i]
			}
			for _, a := range strings.Split(allowed, ",") {
				if a == "*" || a == host {
					return true
				}
				if strings.HasPrefix(a, "*.") && strings.HasSuffix(host, a[1:]) {
					return true
				}
			}
			log.Warn("rejected websocket origin", zap.String("origin", origin))
			return false
		},
	}
}
