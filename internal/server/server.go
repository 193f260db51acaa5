// Package server exposes the chat service over HTTP: the WebSocket
// endpoint, liveness, metrics, and the internal hooks other subsystems
// call when external events must cascade into this one.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/linkhub/chat-service/internal/chat"
	"github.com/linkhub/chat-service/pkg/auth"
)

// Pinger is anything the health check can ping.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the server hands to each session.
type Deps struct {
	Sessions  chat.SessionDeps
	Cache     *chat.ConversationCache
	Store     chat.MessageStore
	Inbox     chat.InboxStore
	Metrics   *chat.Metrics
	JWTSecret string
	DB        Pinger
	Redis     interface {
		IsAvailable(ctx context.Context) error
	}
	Registry *prometheus.Registry
}

// Server is the HTTP front of the chat service.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	deps       Deps
	log        *zap.Logger
}

// New builds the server and its routes.
func New(addr, allowedOrigins string, deps Deps, log *zap.Logger) *Server {
	s := &Server{
		upgrader: newUpgrader(allowedOrigins, log),
		deps:     deps,
		log:      log.With(zap.String("module", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /chats", s.handleInbox)
	mux.HandleFunc("GET /chats/never-chatted", s.handleNeverChatted)
	mux.HandleFunc("GET /chats/{target_user_id}", s.handleTargetedInbox)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /internal/users/{id}/invalidate", s.handleUserInvalidate)
	mux.HandleFunc("POST /internal/edges/removed", s.handleEdgeRemoved)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// handleWS authenticates the handshake credential, upgrades the
// connection, and runs the session until disconnect. A missing, invalid
// or expired credential rejects the connection before the upgrade, fail
// closed and silent: no event is emitted.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.DecodeSessionToken(auth.TokenFromRequest(r), s.deps.JWTSecret)
	if err != nil {
		s.log.Debug("handshake rejected", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	log := s.log.With(zap.Int64("user_id", identity.ID))
	client := newWSClient(conn, log, s.deps.Metrics)
	session := chat.NewSession(client, s.deps.Sessions, log)
	session.Authenticate(*identity)

	s.deps.Metrics.ActiveConnections.Inc()
	log.Info("connection established")

	go client.writePump()
	client.readLoop(r.Context(), session)

	session.Disconnect()
	s.deps.Metrics.ActiveConnections.Dec()
	log.Info("connection closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := `{"status":"ok"}`
	if err := s.deps.DB.PingContext(ctx); err != nil {
		status, body = http.StatusServiceUnavailable, `{"status":"degraded","reason":"postgres"}`
	} else if err := s.deps.Redis.IsAvailable(ctx); err != nil {
		status, body = http.StatusServiceUnavailable, `{"status":"degraded","reason":"redis"}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
