package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/internal/chat"
	"github.com/linkhub/chat-service/pkg/json"
)

// The internal hooks are called by sibling services, not by clients.
// They carry the external events this subsystem must honor: profile
// metadata changes and connection-edge removal.

// handleUserInvalidate evicts every cached conversation involving the
// user, so denormalized display metadata embedded in cached history is
// re-derived on the next read.
func (s *Server) handleUserInvalidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := s.deps.Cache.InvalidateAllForUser(r.Context(), id); err != nil {
		s.log.Error("user invalidation failed", zap.Int64("user_id", id), zap.Error(err))
		http.Error(w, "invalidation failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type edgeRemovedRequest struct {
	UserA int64 `json:"user_a"`
	UserB int64 `json:"user_b"`
}

// handleEdgeRemoved cascades a connection-edge removal: every message of
// the pair is hard-deleted from the store, not merely evicted, and the
// cache entry goes with it.
func (s *Server) handleEdgeRemoved(w http.ResponseWriter, r *http.Request) {
	var req edgeRemovedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserA <= 0 || req.UserB <= 0 || req.UserA == req.UserB {
		http.Error(w, "invalid edge", http.StatusBadRequest)
		return
	}

	if err := s.deps.Store.DeletePair(r.Context(), req.UserA, req.UserB); err != nil {
		s.log.Error("pair delete failed",
			zap.Int64("user_a", req.UserA), zap.Int64("user_b", req.UserB), zap.Error(err))
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	if err := s.deps.Cache.Invalidate(r.Context(), chat.PairKey(req.UserA, req.UserB)); err != nil {
		http.Error(w, "invalidation failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
