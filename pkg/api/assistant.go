package api

import (
	"errors"
	"net/http"

	"github.com/bturcanu/crmbridge/pkg/assistant"
	"github.com/bturcanu/crmbridge/pkg/types"
)

type aiActionRequest struct {
	UserID string `json:"user_id"`
	Prompt string `json:"prompt"`
}

type chatRequest struct {
	UserID   string              `json:"user_id"`
	Messages []types.ChatMessage `json:"messages"`
}

// handleAIAction is POST /api/ai-action, the buffered gateway mode.
func (s *Server) handleAIAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req aiActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		types.ErrBadRequest("user_id is required").WriteJSON(w)
		return
	}
	if !s.limiter.allow(req.UserID) {
		types.ErrRateLimited().WriteJSON(w)
		return
	}

	text, err := s.Assistant.Ask(ctx, req.UserID, req.Prompt)
	if err != nil {
		s.assistantError(w, r, req.UserID, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"result": text})
}

// handleChat is POST /api/chat. The completion is obtained in full before
// the first frame is written, so failures still get a JSON error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		types.ErrBadRequest("user_id is required").WriteJSON(w)
		return
	}
	if !s.limiter.allow(req.UserID) {
		types.ErrRateLimited().WriteJSON(w)
		return
	}

	text, err := s.Assistant.Chat(ctx, req.UserID, types.TurnsFromChat(req.Messages))
	if err != nil {
		s.assistantError(w, r, req.UserID, err)
		return
	}
	assistant.WriteStream(w, text)
}

// handleMCPInfo is GET /api/mcp-info.
func (s *Server) handleMCPInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	server, err := s.ToolServers.Resolve(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "tool server resolve failed", "error", err)
		types.ErrUpstream("broker", "tool server unavailable").WriteJSON(w)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"mcp_url": server.MCPURL})
}

func (s *Server) assistantError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	if errors.Is(err, assistant.ErrNoInput) {
		types.ErrBadRequest("no text to send").WriteJSON(w)
		return
	}
	s.log.ErrorContext(r.Context(), "assistant request failed", "user_id", userID, "error", err)
	types.ErrUpstream("llm", "completion failed").WriteJSON(w)
}
