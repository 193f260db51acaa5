package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/internal/chat"
	"github.com/linkhub/chat-service/pkg/auth"
	"github.com/linkhub/chat-service/pkg/json"
)

// The REST read surface mirrors the socket wire contract's envelope:
// every response is {success, message, body}.

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Body    interface{} `json:"body"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encode response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// requireIdentity decodes the session credential shared with the
// WebSocket handshake. Same rejection: 401, no detail leaked.
func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, err := auth.DecodeSessionToken(auth.TokenFromRequest(r), s.deps.JWTSecret)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return nil, false
	}
	return identity, true
}

// handleInbox returns one summary per conversation partner, latest
// message each, newest conversation first.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	summaries, err := s.deps.Inbox.Inbox(r.Context(), identity.ID)
	if err != nil {
		s.log.Error("inbox query failed", zap.Int64("user_id", identity.ID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "failed to load chats"})
		return
	}
	if summaries == nil {
		summaries = []chat.ConversationSummary{}
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Body: summaries})
}

// handleNeverChatted returns the connected users with whom no message has
// been exchanged yet.
func (s *Server) handleNeverChatted(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	profiles, err := s.deps.Inbox.NeverChatted(r.Context(), identity.ID)
	if err != nil {
		s.log.Error("never-chatted query failed", zap.Int64("user_id", identity.ID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "failed to load users"})
		return
	}
	if profiles == nil {
		profiles = []chat.Profile{}
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Body: profiles})
}

// handleTargetedInbox is the inbox seeded with a specific partner: when
// no conversation with the target exists yet, a zero-message summary for
// the target is prepended so the client can open the conversation view.
func (s *Server) handleTargetedInbox(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	targetID, err := strconv.ParseInt(r.PathValue("target_user_id"), 10, 64)
	if err != nil || targetID <= 0 {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Message: "invalid user id"})
		return
	}
	if targetID == identity.ID {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Message: chat.ErrSelfTarget.Error()})
		return
	}

	target, err := s.deps.Inbox.Profile(r.Context(), targetID)
	if err != nil {
		s.log.Error("profile lookup failed", zap.Int64("target_id", targetID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "failed to load user"})
		return
	}
	if target == nil {
		s.writeJSON(w, http.StatusNotFound, apiResponse{Message: "user not found"})
		return
	}

	summaries, err := s.deps.Inbox.Inbox(r.Context(), identity.ID)
	if err != nil {
		s.log.Error("inbox query failed", zap.Int64("user_id", identity.ID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "failed to load chats"})
		return
	}

	seeded := false
	for _, sum := range summaries {
		if sum.Partner.ID == targetID {
			seeded = true
			break
		}
	}
	if !seeded {
		summaries = append([]chat.ConversationSummary{{Partner: *target}}, summaries...)
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Body: summaries})
}
